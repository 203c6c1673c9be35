package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TrackRepository handles track database operations.
type TrackRepository struct {
	db *DB
}

const trackColumns = `id, spotify_id, name, artist, album, duration, image_url, preview_url, genres, created_at`

const prefixedTrackColumns = `t.id, t.spotify_id, t.name, t.artist, t.album, t.duration, t.image_url, t.preview_url, t.genres, t.created_at`

func scanTrack(row pgx.Row) (*Track, error) {
	var t Track
	err := row.Scan(
		&t.ID,
		&t.ExternalID,
		&t.Name,
		&t.Artist,
		&t.Album,
		&t.Duration,
		&t.ImageURL,
		&t.PreviewURL,
		&t.Genres,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTracks(rows pgx.Rows) ([]Track, error) {
	var tracks []Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning track: %w", err)
		}
		tracks = append(tracks, *t)
	}
	return tracks, rows.Err()
}

// Create inserts a new track. A duplicate external ID yields ErrConflict.
// The duplicate is skipped with ON CONFLICT rather than raised, so an
// enclosing transaction stays usable and the caller can read the existing
// row.
func (r *TrackRepository) Create(ctx context.Context, t *Track) error {
	query := `
		INSERT INTO tracks (spotify_id, name, artist, album, duration, image_url, preview_url, genres, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (spotify_id) DO NOTHING
		RETURNING id, created_at
	`
	t.Genres = nonNil(t.Genres)
	err := r.db.q.QueryRow(ctx, query,
		t.ExternalID,
		t.Name,
		t.Artist,
		t.Album,
		t.Duration,
		t.ImageURL,
		t.PreviewURL,
		t.Genres,
	).Scan(&t.ID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("inserting track: %w: tracks_spotify_id_key", ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("inserting track: %w", translate(err))
	}
	return nil
}

// Get retrieves a track by ID.
func (r *TrackRepository) Get(ctx context.Context, id int64) (*Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = $1`
	t, err := scanTrack(r.db.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track: %w", err)
	}
	return t, nil
}

// GetByExternalID retrieves a track by its external identifier.
func (r *TrackRepository) GetByExternalID(ctx context.Context, externalID string) (*Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE spotify_id = $1`
	t, err := scanTrack(r.db.q.QueryRow(ctx, query, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying track by external id: %w", err)
	}
	return t, nil
}

// List returns tracks in insertion order. A limit of zero or less returns
// every track.
func (r *TrackRepository) List(ctx context.Context, limit int) ([]Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY id`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.db.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tracks: %w", err)
	}
	defer rows.Close()
	return collectTracks(rows)
}

// MatchGenres returns up to limit tracks, in insertion order, having a genre
// that contains any of favorites. Favorites must already be lower-cased.
// A limit of zero or less returns every match.
func (r *TrackRepository) MatchGenres(ctx context.Context, favorites []string, limit int) ([]Track, error) {
	var lim any // NULL means no limit
	if limit > 0 {
		lim = limit
	}
	query := `
		SELECT ` + trackColumns + `
		FROM tracks t
		WHERE EXISTS (
			SELECT 1
			FROM unnest(t.genres) AS g, unnest($1::text[]) AS f
			WHERE strpos(lower(g), f) > 0
		)
		ORDER BY t.id
		LIMIT $2
	`
	rows, err := r.db.q.Query(ctx, query, nonNil(favorites), lim)
	if err != nil {
		return nil, fmt.Errorf("querying tracks by genre: %w", err)
	}
	defer rows.Close()
	return collectTracks(rows)
}
