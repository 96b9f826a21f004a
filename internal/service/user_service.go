package service

import (
	"context"
	"fmt"

	"github.com/aetherlabs/aether-backend/internal/models"
)

type UserService struct {
	users UserStore
}

func NewUserService(users UserStore) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.users.Get(ctx, id)
}

func (s *UserService) Balance(ctx context.Context, id string) (int, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return user.Credits, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetCredits overwrites a user's balance. Administrative operation.
func (s *UserService) SetCredits(ctx context.Context, id string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: credits must be non-negative, got %d", models.ErrInvalidInput, amount)
	}
	return s.users.SetCredits(ctx, id, amount)
}

// AddCredits tops up a user's balance by amount. Administrative operation;
// also the manual reconciliation path for failed generations.
func (s *UserService) AddCredits(ctx context.Context, id string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: top-up amount must be positive, got %d", models.ErrInvalidInput, amount)
	}
	return s.users.Credit(ctx, id, amount)
}
