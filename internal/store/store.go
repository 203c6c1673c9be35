// Package store defines the persistence contract used by the playlist
// generator, the recommender, and the HTTP layer, together with a
// PostgreSQL implementation and an in-memory one.
package store

import (
	"context"

	"github.com/justestif/vibestream/internal/db"
)

// Store is the key-indexed persistence interface.
//
// AddTrackToPlaylist and RemoveTrackFromPlaylist keep Playlist.TrackCount in
// step with the membership rows. Lookups of missing rows return ErrNotFound;
// unique-constraint violations return ErrConflict.
type Store interface {
	GetUser(ctx context.Context, id string) (*db.User, error)
	UpsertUser(ctx context.Context, u *db.User) error

	ListPlaylists(ctx context.Context, userID string) ([]db.Playlist, error)
	GetPlaylist(ctx context.Context, id int64) (*db.Playlist, error)
	CreatePlaylist(ctx context.Context, p *db.Playlist) error
	UpdatePlaylist(ctx context.Context, id int64, u db.PlaylistUpdate) (*db.Playlist, error)
	DeletePlaylist(ctx context.Context, id int64) error
	ReconcileTrackCount(ctx context.Context, playlistID int64) (*db.Playlist, error)
	ReconcileAllTrackCounts(ctx context.Context) (int64, error)

	CreateTrack(ctx context.Context, t *db.Track) error
	GetTrack(ctx context.Context, id int64) (*db.Track, error)
	GetTrackByExternalID(ctx context.Context, externalID string) (*db.Track, error)
	// ListTracks returns tracks in insertion order; limit <= 0 returns all.
	ListTracks(ctx context.Context, limit int) ([]db.Track, error)
	// MatchTracksByGenre returns up to limit tracks, in insertion order,
	// with a genre containing any of the lower-cased favorites.
	MatchTracksByGenre(ctx context.Context, favorites []string, limit int) ([]db.Track, error)

	GetPlaylistTracks(ctx context.Context, playlistID int64) ([]db.Track, error)
	ListMemberships(ctx context.Context, playlistID int64) ([]db.PlaylistTrack, error)
	AddTrackToPlaylist(ctx context.Context, playlistID, trackID int64, position int) (*db.PlaylistTrack, error)
	RemoveTrackFromPlaylist(ctx context.Context, playlistID, trackID int64) error

	GetUserPreferences(ctx context.Context, userID string) (*db.UserPreferences, error)
	UpsertUserPreferences(ctx context.Context, p *db.UserPreferences) error

	// InTx runs fn against a Store whose writes commit together when fn
	// returns nil and are discarded otherwise. Nested calls join the
	// enclosing transaction.
	InTx(ctx context.Context, fn func(Store) error) error
}
