// Package playlists generates mood playlists and manages playlist ownership
// and membership on behalf of a user.
package playlists

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/justestif/vibestream/internal/catalog"
	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/logging"
	"github.com/justestif/vibestream/internal/metrics"
	"github.com/justestif/vibestream/internal/store"
)

// Service generates and manages playlists.
type Service struct {
	store        store.Store
	materializer *Materializer
	bestEffort   bool
}

// Option configures a Service.
type Option func(*Service)

// WithBestEffort disables the generation transaction. A failure part-way
// through leaves the playlist and any tracks added so far in place.
func WithBestEffort() Option {
	return func(s *Service) {
		s.bestEffort = true
	}
}

// WithMaterializer overrides the track materializer.
func WithMaterializer(m *Materializer) Option {
	return func(s *Service) {
		s.materializer = m
	}
}

// New creates a new playlist service.
func New(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:        st,
		materializer: NewMaterializer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate creates a playlist for mood populated with the mood's seed
// tracks at positions 0..n-1, and returns it re-read from the store.
//
// By default all writes happen in one transaction, so a failure leaves
// nothing behind.
func (s *Service) Generate(ctx context.Context, userID, mood string, genres []string) (*db.Playlist, error) {
	if strings.TrimSpace(mood) == "" {
		return nil, &store.ValidationError{Field: "mood", Message: "Mood is required"}
	}

	start := time.Now()
	var playlistID int64
	build := func(st store.Store) error {
		id, err := s.generate(ctx, st, userID, mood, genres)
		playlistID = id
		return err
	}

	var err error
	if s.bestEffort {
		err = build(s.store)
	} else {
		err = s.store.InTx(ctx, build)
	}
	metrics.RecordGeneration(mood, time.Since(start), err)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("user_id", userID).Str("mood", mood).Msg("playlist generation failed")
		return nil, fmt.Errorf("generating %s playlist: %w", mood, err)
	}

	playlist, err := s.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return nil, fmt.Errorf("reading generated playlist: %w", err)
	}

	logging.Ctx(ctx).Info().
		Str("user_id", userID).
		Str("mood", mood).
		Int64("playlist_id", playlist.ID).
		Int("track_count", playlist.TrackCount).
		Msg("playlist generated")
	return playlist, nil
}

func (s *Service) generate(ctx context.Context, st store.Store, userID, mood string, genres []string) (int64, error) {
	name := catalog.PlaylistName(mood)
	description := catalog.Description(mood)
	image := catalog.PlaylistImageURL
	moodTag := mood

	if genres == nil {
		genres = []string{}
	}
	playlist := &db.Playlist{
		UserID:      userID,
		Name:        name,
		Description: &description,
		Mood:        &moodTag,
		Genres:      genres,
		ImageURL:    &image,
	}
	if err := st.CreatePlaylist(ctx, playlist); err != nil {
		return 0, fmt.Errorf("creating playlist: %w", err)
	}

	for i, d := range catalog.Tracks(mood) {
		track, err := s.materializer.Materialize(ctx, st, d, "")
		if err != nil {
			return playlist.ID, err
		}
		if _, err := st.AddTrackToPlaylist(ctx, playlist.ID, track.ID, i); err != nil {
			return playlist.ID, fmt.Errorf("adding track %d to playlist: %w", track.ID, err)
		}
	}
	return playlist.ID, nil
}

// List returns the user's playlists.
func (s *Service) List(ctx context.Context, userID string) ([]db.Playlist, error) {
	playlists, err := s.store.ListPlaylists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing playlists: %w", err)
	}
	if playlists == nil {
		playlists = []db.Playlist{}
	}
	return playlists, nil
}

// Get returns a playlist owned by userID. Playlists owned by someone else
// are reported as not found.
func (s *Service) Get(ctx context.Context, userID string, id int64) (*db.Playlist, error) {
	p, err := s.store.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, store.ErrNotFound
	}
	return p, nil
}

// CreateInput holds the fields of a manually created playlist.
type CreateInput struct {
	Name        string
	Description *string
	Mood        *string
	Genres      []string
	ImageURL    *string
}

// Create stores a manually built, empty playlist.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*db.Playlist, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, &store.ValidationError{Field: "name", Message: "Name is required"}
	}
	p := &db.Playlist{
		UserID:      userID,
		Name:        in.Name,
		Description: in.Description,
		Mood:        in.Mood,
		Genres:      in.Genres,
		ImageURL:    in.ImageURL,
	}
	if p.Genres == nil {
		p.Genres = []string{}
	}
	if err := s.store.CreatePlaylist(ctx, p); err != nil {
		return nil, fmt.Errorf("creating playlist: %w", err)
	}
	return p, nil
}

// Update applies a partial update to a playlist owned by userID.
func (s *Service) Update(ctx context.Context, userID string, id int64, u db.PlaylistUpdate) (*db.Playlist, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, &store.ValidationError{Field: "name", Message: "Name cannot be empty"}
	}
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.store.UpdatePlaylist(ctx, id, u)
}

// Delete removes a playlist owned by userID.
func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	return s.store.DeletePlaylist(ctx, id)
}

// Tracks returns the tracks of a playlist owned by userID, in position order.
func (s *Service) Tracks(ctx context.Context, userID string, id int64) ([]db.Track, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	tracks, err := s.store.GetPlaylistTracks(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing playlist tracks: %w", err)
	}
	if tracks == nil {
		tracks = []db.Track{}
	}
	return tracks, nil
}

// AddTrack adds an existing track to a playlist owned by userID. A nil
// position appends after the current highest position.
func (s *Service) AddTrack(ctx context.Context, userID string, playlistID, trackID int64, position *int) (*db.PlaylistTrack, error) {
	if position != nil && *position < 0 {
		return nil, &store.ValidationError{Field: "position", Message: "Position cannot be negative"}
	}

	var added *db.PlaylistTrack
	err := s.store.InTx(ctx, func(st store.Store) error {
		p, err := st.GetPlaylist(ctx, playlistID)
		if err != nil {
			return err
		}
		if p.UserID != userID {
			return store.ErrNotFound
		}

		pos := 0
		if position != nil {
			pos = *position
		} else {
			members, err := st.ListMemberships(ctx, playlistID)
			if err != nil {
				return err
			}
			for _, m := range members {
				if m.Position >= pos {
					pos = m.Position + 1
				}
			}
		}

		added, err = st.AddTrackToPlaylist(ctx, playlistID, trackID, pos)
		return err
	})
	if err != nil {
		return nil, err
	}
	return added, nil
}

// RemoveTrack removes a track from a playlist owned by userID.
func (s *Service) RemoveTrack(ctx context.Context, userID string, playlistID, trackID int64) error {
	if _, err := s.Get(ctx, userID, playlistID); err != nil {
		return err
	}
	return s.store.RemoveTrackFromPlaylist(ctx, playlistID, trackID)
}

// Reconcile recomputes the track count of a playlist owned by userID.
func (s *Service) Reconcile(ctx context.Context, userID string, id int64) (*db.Playlist, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.store.ReconcileTrackCount(ctx, id)
}

// ReconcileAll repairs every drifted track count and returns how many
// playlists were corrected.
func (s *Service) ReconcileAll(ctx context.Context) (int64, error) {
	n, err := s.store.ReconcileAllTrackCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("reconciling track counts: %w", err)
	}
	if n > 0 {
		logging.Ctx(ctx).Warn().Int64("playlists", n).Msg("repaired drifted track counts")
	}
	return n, nil
}

// IsValidation reports whether err is caused by invalid input.
func IsValidation(err error) bool {
	var ve *store.ValidationError
	return errors.As(err, &ve)
}
