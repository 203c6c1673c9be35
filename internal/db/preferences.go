package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PreferencesRepository handles user preference database operations.
type PreferencesRepository struct {
	db *DB
}

// Get retrieves the preferences row for a user.
func (r *PreferencesRepository) Get(ctx context.Context, userID string) (*UserPreferences, error) {
	query := `
		SELECT id, user_id, favorite_genres, spotify_connected, spotify_user_id, created_at, updated_at
		FROM user_preferences
		WHERE user_id = $1
	`
	var p UserPreferences
	err := r.db.q.QueryRow(ctx, query, userID).Scan(
		&p.ID,
		&p.UserID,
		&p.FavoriteGenres,
		&p.SpotifyConnected,
		&p.SpotifyUserID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user preferences: %w", err)
	}
	return &p, nil
}

// Upsert creates or replaces the preferences row for a user.
func (r *PreferencesRepository) Upsert(ctx context.Context, p *UserPreferences) error {
	query := `
		INSERT INTO user_preferences (user_id, favorite_genres, spotify_connected, spotify_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			favorite_genres = EXCLUDED.favorite_genres,
			spotify_connected = EXCLUDED.spotify_connected,
			spotify_user_id = EXCLUDED.spotify_user_id,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`
	p.FavoriteGenres = nonNil(p.FavoriteGenres)
	err := r.db.q.QueryRow(ctx, query,
		p.UserID,
		p.FavoriteGenres,
		p.SpotifyConnected,
		p.SpotifyUserID,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting user preferences: %w", translate(err))
	}
	return nil
}
