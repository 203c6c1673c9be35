// Package recommend selects tracks for a user from their favorite genres.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/logging"
	"github.com/justestif/vibestream/internal/metrics"
	"github.com/justestif/vibestream/internal/store"
)

// DefaultLimit is used when the caller passes a non-positive limit.
const DefaultLimit = 10

// Strategy labels.
const (
	StrategyColdStart  = "cold_start"
	StrategyPreference = "preference"
)

// Service produces track recommendations.
type Service struct {
	store store.Store
}

// New creates a new recommendation service.
func New(st store.Store) *Service {
	return &Service{store: st}
}

// Recommend returns up to limit tracks for userID. Users without favorite
// genres get the first tracks in insertion order; everyone else gets
// genre matches first, topped up with other tracks.
func (s *Service) Recommend(ctx context.Context, userID string, limit int) ([]db.Track, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	favorites, err := s.favorites(ctx, userID)
	if err != nil {
		return nil, err
	}

	if len(favorites) == 0 {
		tracks, err := s.store.ListTracks(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("listing tracks: %w", err)
		}
		metrics.RecordRecommendation(StrategyColdStart)
		return nonNil(tracks), nil
	}

	candidates, err := s.candidates(ctx, favorites, limit)
	if err != nil {
		return nil, err
	}
	metrics.RecordRecommendation(StrategyPreference)

	out := Rank(candidates, favorites, limit)
	logging.Ctx(ctx).Debug().
		Str("user_id", userID).
		Int("candidates", len(candidates)).
		Int("returned", len(out)).
		Msg("recommendations ranked")
	return out, nil
}

// candidates loads the first limit genre matches and, when those run short,
// the first limit tracks overall. Short matches mean every match is loaded,
// and the first limit tracks hold enough non-matching ones to fill the rest,
// so ranking this set equals ranking the whole store.
func (s *Service) candidates(ctx context.Context, favorites []string, limit int) ([]db.Track, error) {
	matches, err := s.store.MatchTracksByGenre(ctx, favorites, limit)
	if err != nil {
		return nil, fmt.Errorf("matching tracks: %w", err)
	}
	if len(matches) >= limit {
		return matches, nil
	}

	head, err := s.store.ListTracks(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}

	seen := make(map[int64]bool, len(matches))
	out := append([]db.Track(nil), matches...)
	for _, t := range matches {
		seen[t.ID] = true
	}
	for _, t := range head {
		if !seen[t.ID] {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// favorites returns the user's trimmed, lower-cased favorite genres.
func (s *Service) favorites(ctx context.Context, userID string) ([]string, error) {
	prefs, err := s.store.GetUserPreferences(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading preferences: %w", err)
	}

	var out []string
	for _, g := range prefs.FavoriteGenres {
		g = strings.ToLower(strings.TrimSpace(g))
		if g != "" {
			out = append(out, g)
		}
	}
	return out, nil
}

// Rank picks up to limit tracks. Tracks with a genre containing any
// favorite (case-insensitive) come first in their original order; the
// remainder is filled with the other tracks, also in order. No track
// appears twice.
func Rank(tracks []db.Track, favorites []string, limit int) []db.Track {
	if limit <= 0 {
		limit = DefaultLimit
	}

	lowered := make([]string, 0, len(favorites))
	for _, f := range favorites {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			lowered = append(lowered, f)
		}
	}

	out := make([]db.Track, 0, min(limit, len(tracks)))
	picked := make([]bool, len(tracks))

	for i, t := range tracks {
		if len(out) == limit {
			break
		}
		if matches(t, lowered) {
			out = append(out, t)
			picked[i] = true
		}
	}

	for i, t := range tracks {
		if len(out) == limit {
			break
		}
		if !picked[i] {
			out = append(out, t)
		}
	}
	return out
}

func matches(t db.Track, favorites []string) bool {
	for _, g := range t.Genres {
		g = strings.ToLower(g)
		for _, f := range favorites {
			if strings.Contains(g, f) {
				return true
			}
		}
	}
	return false
}

func nonNil(tracks []db.Track) []db.Track {
	if tracks == nil {
		return []db.Track{}
	}
	return tracks
}
