package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// UserRepository handles user database operations.
type UserRepository struct {
	db *DB
}

// Get retrieves a user by ID.
func (r *UserRepository) Get(ctx context.Context, id string) (*User, error) {
	query := `
		SELECT id, email, first_name, last_name, profile_image_url, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user User
	err := r.db.q.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.FirstName,
		&user.LastName,
		&user.ProfileImageURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return &user, nil
}

// Upsert creates or updates a user. New values overwrite old ones and
// created_at is preserved.
func (r *UserRepository) Upsert(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, email, first_name, last_name, profile_image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			profile_image_url = EXCLUDED.profile_image_url,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := r.db.q.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.FirstName,
		user.LastName,
		user.ProfileImageURL,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting user: %w", translate(err))
	}
	return nil
}
