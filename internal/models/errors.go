package models

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrModelNotFound   = errors.New("model not found")
	ErrRequestNotFound = errors.New("generation request not found")

	ErrInsufficientCredits = errors.New("insufficient credits")

	ErrInvalidInput          = errors.New("invalid input")
	ErrEmptyPrompt           = errors.New("prompt cannot be empty")
	ErrModelInactive         = errors.New("model is not active")
	ErrUnsupportedCapability = errors.New("model does not support the requested generation mode")
	ErrDurationExceeded      = errors.New("duration exceeds model maximum")

	// ErrInvalidTransition indicates an attempt to move a request backward
	// or skip a state. Normal flow never produces it; seeing it in logs
	// means an orchestration bug.
	ErrInvalidTransition = errors.New("invalid status transition")
)
