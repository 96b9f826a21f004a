package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aetherlabs/aether-backend/internal/models"
)

// UserRepository is the credit ledger. Balances are mutated only through
// Debit, Credit and SetCredits, never by writing the column directly.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	const query = `
SELECT id, email, role, credits, created_at
FROM users WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.Role, &u.Credits, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	const query = `
SELECT id, email, role, credits, created_at
FROM users ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Role, &u.Credits, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Debit atomically subtracts amount from the user's balance. The conditional
// update guarantees that under concurrent debits for the same user at most
// the available balance is ever consumed; a balance can never go negative.
func (r *UserRepository) Debit(ctx context.Context, id string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("debit amount must be non-negative, got %d", amount)
	}
	const query = `
UPDATE users SET credits = credits - ?
WHERE id = ? AND credits >= ?`
	res, err := r.db.ExecContext(ctx, query, amount, id, amount)
	if err != nil {
		return fmt.Errorf("debit credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish an unknown user from an overdraw.
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return models.ErrInsufficientCredits
	}
	return nil
}

func (r *UserRepository) Credit(ctx context.Context, id string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("credit amount must be non-negative, got %d", amount)
	}
	const query = `UPDATE users SET credits = credits + ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("credit credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("credit rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SetCredits overwrites the balance. Administrative operation.
func (r *UserRepository) SetCredits(ctx context.Context, id string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("credits must be non-negative, got %d", amount)
	}
	const query = `UPDATE users SET credits = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, amount, id)
	if err != nil {
		return fmt.Errorf("set credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set credits rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
