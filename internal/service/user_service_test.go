package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherlabs/aether-backend/internal/models"
	"github.com/aetherlabs/aether-backend/internal/testutil"
)

func TestAddCredits(t *testing.T) {
	users := testutil.NewMemoryUserStore(models.User{ID: "user-1", Credits: 10})
	svc := NewUserService(users)

	require.NoError(t, svc.AddCredits(context.Background(), "user-1", 5))

	balance, err := svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 15, balance, "top-up adds, it does not overwrite")

	err = svc.AddCredits(context.Background(), "user-1", 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	err = svc.AddCredits(context.Background(), "user-1", -3)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	err = svc.AddCredits(context.Background(), "ghost", 5)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestSetCredits(t *testing.T) {
	users := testutil.NewMemoryUserStore(models.User{ID: "user-1", Credits: 10})
	svc := NewUserService(users)

	require.NoError(t, svc.SetCredits(context.Background(), "user-1", 3))

	balance, err := svc.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, balance)

	err = svc.SetCredits(context.Background(), "user-1", -1)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
