package models

import "time"

type UserRole string

const (
	RoleUser  UserRole = "USER"
	RoleAdmin UserRole = "ADMIN"
)

type MediaType string

const (
	MediaImage MediaType = "IMAGE"
	MediaVideo MediaType = "VIDEO"
)

type User struct {
	ID        string
	Email     string
	Role      UserRole
	Credits   int
	CreatedAt time.Time
}

// AIModel is a catalog entry. A CostPerGeneration of zero means the model
// carries no own cost and the AppConfig fallback cost applies.
type AIModel struct {
	ID                   string
	Name                 string
	Description          string
	CostPerGeneration    int
	MaxDuration          int
	DefaultDuration      int
	DefaultCfgScale      float64
	SupportsImageToVideo bool
	SupportsTextToVideo  bool
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// GenerationRequest is one user-initiated request for a single media
// artifact. CostCredits, Duration and CfgScale are snapshots taken at
// creation time; later catalog edits do not change them.
type GenerationRequest struct {
	ID             string
	UserID         string
	Prompt         string
	MediaType      MediaType
	ModelID        string
	CostCredits    int
	Duration       int
	CfgScale       float64
	SourceImage    string
	Status         RequestStatus
	OutputURL      string
	FailureReason  string
	ProviderTaskID string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// AppConfig holds process-wide generation settings. Mutated only by an
// administrator, read on every request creation.
type AppConfig struct {
	RetentionDays int
	CostPerImage  int
	CostPerVideo  int
}
