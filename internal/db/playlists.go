package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// PlaylistRepository handles playlist and membership database operations.
type PlaylistRepository struct {
	db *DB
}

const playlistColumns = `id, user_id, name, description, mood, genres, image_url, track_count, created_at, updated_at`

func scanPlaylist(row pgx.Row) (*Playlist, error) {
	var p Playlist
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&p.Description,
		&p.Mood,
		&p.Genres,
		&p.ImageURL,
		&p.TrackCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new playlist with a track count of zero.
func (r *PlaylistRepository) Create(ctx context.Context, p *Playlist) error {
	query := `
		INSERT INTO playlists (user_id, name, description, mood, genres, image_url, track_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, NOW(), NOW())
		RETURNING id, track_count, created_at, updated_at
	`
	p.Genres = nonNil(p.Genres)
	err := r.db.q.QueryRow(ctx, query,
		p.UserID,
		p.Name,
		p.Description,
		p.Mood,
		p.Genres,
		p.ImageURL,
	).Scan(&p.ID, &p.TrackCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting playlist: %w", translate(err))
	}
	return nil
}

// Get retrieves a playlist by ID.
func (r *PlaylistRepository) Get(ctx context.Context, id int64) (*Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE id = $1`
	p, err := scanPlaylist(r.db.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying playlist: %w", err)
	}
	return p, nil
}

// ListForUser retrieves a user's playlists, newest first.
func (r *PlaylistRepository) ListForUser(ctx context.Context, userID string) ([]Playlist, error) {
	query := `SELECT ` + playlistColumns + ` FROM playlists WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user playlists: %w", err)
	}
	defer rows.Close()

	var playlists []Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning playlist: %w", err)
		}
		playlists = append(playlists, *p)
	}
	return playlists, rows.Err()
}

// Update applies the non-nil fields of u and returns the updated playlist.
func (r *PlaylistRepository) Update(ctx context.Context, id int64, u PlaylistUpdate) (*Playlist, error) {
	query := `
		UPDATE playlists SET
			name = COALESCE($2, name),
			description = COALESCE($3, description),
			mood = COALESCE($4, mood),
			genres = COALESCE($5, genres),
			image_url = COALESCE($6, image_url),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + playlistColumns
	p, err := scanPlaylist(r.db.q.QueryRow(ctx, query, id, u.Name, u.Description, u.Mood, u.Genres, u.ImageURL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating playlist: %w", err)
	}
	return p, nil
}

// Delete removes a playlist and, by cascade, its memberships.
func (r *PlaylistRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.q.Exec(ctx, `DELETE FROM playlists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting playlist: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTrack inserts a membership row and increments the playlist's track
// count in the same transaction.
func (r *PlaylistRepository) AddTrack(ctx context.Context, playlistID, trackID int64, position int) (*PlaylistTrack, error) {
	var pt PlaylistTrack
	err := r.db.InTx(ctx, func(tx *DB) error {
		query := `
			INSERT INTO playlist_tracks (playlist_id, track_id, position, created_at)
			VALUES ($1, $2, $3, NOW())
			RETURNING id, playlist_id, track_id, position, created_at
		`
		err := tx.q.QueryRow(ctx, query, playlistID, trackID, position).Scan(
			&pt.ID,
			&pt.PlaylistID,
			&pt.TrackID,
			&pt.Position,
			&pt.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting playlist track: %w", translate(err))
		}

		_, err = tx.q.Exec(ctx, `
			UPDATE playlists SET track_count = track_count + 1, updated_at = NOW()
			WHERE id = $1
		`, playlistID)
		if err != nil {
			return fmt.Errorf("incrementing track count: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

// RemoveTrack deletes a membership row and decrements the playlist's track
// count in the same transaction.
func (r *PlaylistRepository) RemoveTrack(ctx context.Context, playlistID, trackID int64) error {
	return r.db.InTx(ctx, func(tx *DB) error {
		result, err := tx.q.Exec(ctx,
			`DELETE FROM playlist_tracks WHERE playlist_id = $1 AND track_id = $2`,
			playlistID, trackID)
		if err != nil {
			return fmt.Errorf("deleting playlist track: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrNotFound
		}

		_, err = tx.q.Exec(ctx, `
			UPDATE playlists SET track_count = GREATEST(track_count - 1, 0), updated_at = NOW()
			WHERE id = $1
		`, playlistID)
		if err != nil {
			return fmt.Errorf("decrementing track count: %w", err)
		}
		return nil
	})
}

// Memberships returns the membership rows of a playlist ordered by position.
func (r *PlaylistRepository) Memberships(ctx context.Context, playlistID int64) ([]PlaylistTrack, error) {
	query := `
		SELECT id, playlist_id, track_id, position, created_at
		FROM playlist_tracks
		WHERE playlist_id = $1
		ORDER BY position, id
	`
	rows, err := r.db.q.Query(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("querying playlist memberships: %w", err)
	}
	defer rows.Close()

	var out []PlaylistTrack
	for rows.Next() {
		var pt PlaylistTrack
		if err := rows.Scan(&pt.ID, &pt.PlaylistID, &pt.TrackID, &pt.Position, &pt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning playlist membership: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// Tracks returns the tracks of a playlist ordered by membership position.
func (r *PlaylistRepository) Tracks(ctx context.Context, playlistID int64) ([]Track, error) {
	query := `
		SELECT ` + prefixedTrackColumns + `
		FROM tracks t
		JOIN playlist_tracks pt ON t.id = pt.track_id
		WHERE pt.playlist_id = $1
		ORDER BY pt.position, pt.id
	`
	rows, err := r.db.q.Query(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("querying playlist tracks: %w", err)
	}
	defer rows.Close()
	return collectTracks(rows)
}

// ReconcileTrackCount recomputes a playlist's track count from its
// membership rows and returns the corrected playlist.
func (r *PlaylistRepository) ReconcileTrackCount(ctx context.Context, playlistID int64) (*Playlist, error) {
	query := `
		UPDATE playlists p SET
			track_count = (SELECT COUNT(*) FROM playlist_tracks pt WHERE pt.playlist_id = p.id),
			updated_at = NOW()
		WHERE p.id = $1
		RETURNING ` + playlistColumns
	p, err := scanPlaylist(r.db.q.QueryRow(ctx, query, playlistID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reconciling track count: %w", err)
	}
	return p, nil
}

// ReconcileAllTrackCounts repairs every playlist whose track count has
// drifted and returns how many were corrected.
func (r *PlaylistRepository) ReconcileAllTrackCounts(ctx context.Context) (int64, error) {
	query := `
		UPDATE playlists p SET track_count = c.actual, updated_at = NOW()
		FROM (
			SELECT pl.id, COUNT(pt.id) AS actual
			FROM playlists pl
			LEFT JOIN playlist_tracks pt ON pt.playlist_id = pl.id
			GROUP BY pl.id
		) c
		WHERE p.id = c.id AND p.track_count <> c.actual
	`
	result, err := r.db.q.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reconciling track counts: %w", err)
	}
	return result.RowsAffected(), nil
}
