package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/justestif/vibestream/internal/db"
)

// Memory is an in-process Store used by tests and by the "memory" storage
// driver. Identifiers come from per-table counters, so it is only suitable
// for a single process.
type Memory struct {
	mu   *sync.Mutex
	st   *memState
	inTx bool
}

type memState struct {
	users     map[string]db.User
	playlists map[int64]db.Playlist
	tracks    map[int64]db.Track
	byExtID   map[string]int64
	members   map[int64]db.PlaylistTrack
	prefs     map[string]db.UserPreferences

	nextPlaylist int64
	nextTrack    int64
	nextMember   int64
	nextPref     int64
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		mu: &sync.Mutex{},
		st: &memState{
			users:     make(map[string]db.User),
			playlists: make(map[int64]db.Playlist),
			tracks:    make(map[int64]db.Track),
			byExtID:   make(map[string]int64),
			members:   make(map[int64]db.PlaylistTrack),
			prefs:     make(map[string]db.UserPreferences),
		},
	}
}

// lock acquires the store mutex unless m is a transaction view, whose
// enclosing InTx already holds it.
func (m *Memory) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// InTx runs fn with exclusive access to the store and restores the previous
// contents if fn fails. Identifier counters are not rolled back.
func (m *Memory) InTx(ctx context.Context, fn func(Store) error) error {
	if m.inTx {
		return fn(m)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&Memory{mu: m.mu, st: m.st, inTx: true}); err != nil {
		snapshot.nextPlaylist = m.st.nextPlaylist
		snapshot.nextTrack = m.st.nextTrack
		snapshot.nextMember = m.st.nextMember
		snapshot.nextPref = m.st.nextPref
		*m.st = *snapshot
		return err
	}
	return nil
}

func (s *memState) clone() *memState {
	c := *s
	c.users = cloneMap(s.users)
	c.playlists = cloneMap(s.playlists)
	c.tracks = cloneMap(s.tracks)
	c.byExtID = cloneMap(s.byExtID)
	c.members = cloneMap(s.members)
	c.prefs = cloneMap(s.prefs)
	return &c
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func copyPlaylist(p db.Playlist) *db.Playlist {
	p.Genres = cloneStrings(p.Genres)
	return &p
}

func copyTrack(t db.Track) *db.Track {
	t.Genres = cloneStrings(t.Genres)
	return &t
}

// GetUser implements Store.
func (m *Memory) GetUser(ctx context.Context, id string) (*db.User, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, ok := m.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// UpsertUser implements Store.
func (m *Memory) UpsertUser(ctx context.Context, u *db.User) error {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.Email != nil {
		for id, other := range m.st.users {
			if id != u.ID && other.Email != nil && strings.EqualFold(*other.Email, *u.Email) {
				return fmt.Errorf("%w: users_email_key", ErrConflict)
			}
		}
	}

	now := time.Now()
	if existing, ok := m.st.users[u.ID]; ok {
		u.CreatedAt = existing.CreatedAt
	} else {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m.st.users[u.ID] = *u
	return nil
}

// ListPlaylists implements Store. Playlists are returned newest first.
func (m *Memory) ListPlaylists(ctx context.Context, userID string) ([]db.Playlist, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []db.Playlist
	for _, p := range m.st.playlists {
		if p.UserID == userID {
			out = append(out, *copyPlaylist(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// GetPlaylist implements Store.
func (m *Memory) GetPlaylist(ctx context.Context, id int64) (*db.Playlist, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := m.st.playlists[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPlaylist(p), nil
}

// CreatePlaylist implements Store.
func (m *Memory) CreatePlaylist(ctx context.Context, p *db.Playlist) error {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.st.nextPlaylist++
	now := time.Now()
	p.ID = m.st.nextPlaylist
	p.Genres = cloneStrings(p.Genres)
	p.TrackCount = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	m.st.playlists[p.ID] = *copyPlaylist(*p)
	return nil
}

// UpdatePlaylist implements Store.
func (m *Memory) UpdatePlaylist(ctx context.Context, id int64, u db.PlaylistUpdate) (*db.Playlist, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := m.st.playlists[id]
	if !ok {
		return nil, ErrNotFound
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = u.Description
	}
	if u.Mood != nil {
		p.Mood = u.Mood
	}
	if u.Genres != nil {
		p.Genres = cloneStrings(u.Genres)
	}
	if u.ImageURL != nil {
		p.ImageURL = u.ImageURL
	}
	p.UpdatedAt = time.Now()
	m.st.playlists[id] = p
	return copyPlaylist(p), nil
}

// DeletePlaylist implements Store. Memberships are removed with the playlist.
func (m *Memory) DeletePlaylist(ctx context.Context, id int64) error {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := m.st.playlists[id]; !ok {
		return ErrNotFound
	}
	delete(m.st.playlists, id)
	for mid, pt := range m.st.members {
		if pt.PlaylistID == id {
			delete(m.st.members, mid)
		}
	}
	return nil
}

func (s *memState) memberCount(playlistID int64) int {
	n := 0
	for _, pt := range s.members {
		if pt.PlaylistID == playlistID {
			n++
		}
	}
	return n
}

// ReconcileTrackCount implements Store.
func (m *Memory) ReconcileTrackCount(ctx context.Context, playlistID int64) (*db.Playlist, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := m.st.playlists[playlistID]
	if !ok {
		return nil, ErrNotFound
	}
	p.TrackCount = m.st.memberCount(playlistID)
	p.UpdatedAt = time.Now()
	m.st.playlists[playlistID] = p
	return copyPlaylist(p), nil
}

// ReconcileAllTrackCounts implements Store.
func (m *Memory) ReconcileAllTrackCounts(ctx context.Context) (int64, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var fixed int64
	for id, p := range m.st.playlists {
		actual := m.st.memberCount(id)
		if p.TrackCount != actual {
			p.TrackCount = actual
			p.UpdatedAt = time.Now()
			m.st.playlists[id] = p
			fixed++
		}
	}
	return fixed, nil
}

// CreateTrack implements Store.
func (m *Memory) CreateTrack(ctx context.Context, t *db.Track) error {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.ExternalID != nil {
		if _, exists := m.st.byExtID[*t.ExternalID]; exists {
			return fmt.Errorf("%w: tracks_spotify_id_key", ErrConflict)
		}
	}
	m.st.nextTrack++
	t.ID = m.st.nextTrack
	t.Genres = cloneStrings(t.Genres)
	t.CreatedAt = time.Now()
	m.st.tracks[t.ID] = *copyTrack(*t)
	if t.ExternalID != nil {
		m.st.byExtID[*t.ExternalID] = t.ID
	}
	return nil
}

// GetTrack implements Store.
func (m *Memory) GetTrack(ctx context.Context, id int64) (*db.Track, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := m.st.tracks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTrack(t), nil
}

// GetTrackByExternalID implements Store.
func (m *Memory) GetTrackByExternalID(ctx context.Context, externalID string) (*db.Track, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, ok := m.st.byExtID[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTrack(m.st.tracks[id]), nil
}

// ListTracks implements Store.
func (m *Memory) ListTracks(ctx context.Context, limit int) ([]db.Track, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]db.Track, 0, len(m.st.tracks))
	for _, t := range m.st.tracks {
		out = append(out, *copyTrack(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MatchTracksByGenre implements Store.
func (m *Memory) MatchTracksByGenre(ctx context.Context, favorites []string, limit int) ([]db.Track, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []db.Track
	for _, t := range m.st.tracks {
		if genreMatch(t.Genres, favorites) {
			out = append(out, *copyTrack(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func genreMatch(genres, favorites []string) bool {
	for _, g := range genres {
		g = strings.ToLower(g)
		for _, f := range favorites {
			if strings.Contains(g, f) {
				return true
			}
		}
	}
	return false
}

func (s *memState) membershipsOf(playlistID int64) []db.PlaylistTrack {
	var out []db.PlaylistTrack
	for _, pt := range s.members {
		if pt.PlaylistID == playlistID {
			out = append(out, pt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetPlaylistTracks implements Store. Tracks are ordered by position.
func (m *Memory) GetPlaylistTracks(ctx context.Context, playlistID int64) ([]db.Track, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []db.Track
	for _, pt := range m.st.membershipsOf(playlistID) {
		out = append(out, *copyTrack(m.st.tracks[pt.TrackID]))
	}
	return out, nil
}

// ListMemberships implements Store.
func (m *Memory) ListMemberships(ctx context.Context, playlistID int64) ([]db.PlaylistTrack, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.st.membershipsOf(playlistID), nil
}

// AddTrackToPlaylist implements Store.
func (m *Memory) AddTrackToPlaylist(ctx context.Context, playlistID, trackID int64, position int) (*db.PlaylistTrack, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := m.st.playlists[playlistID]
	if !ok {
		return nil, fmt.Errorf("%w: playlist %d", ErrNotFound, playlistID)
	}
	if _, ok := m.st.tracks[trackID]; !ok {
		return nil, fmt.Errorf("%w: track %d", ErrNotFound, trackID)
	}
	for _, pt := range m.st.members {
		if pt.PlaylistID == playlistID && pt.TrackID == trackID {
			return nil, fmt.Errorf("%w: playlist_tracks_playlist_id_track_id_key", ErrConflict)
		}
	}

	m.st.nextMember++
	now := time.Now()
	pt := db.PlaylistTrack{
		ID:         m.st.nextMember,
		PlaylistID: playlistID,
		TrackID:    trackID,
		Position:   position,
		CreatedAt:  now,
	}
	m.st.members[pt.ID] = pt

	p.TrackCount++
	p.UpdatedAt = now
	m.st.playlists[playlistID] = p
	return &pt, nil
}

// RemoveTrackFromPlaylist implements Store.
func (m *Memory) RemoveTrackFromPlaylist(ctx context.Context, playlistID, trackID int64) error {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, pt := range m.st.members {
		if pt.PlaylistID != playlistID || pt.TrackID != trackID {
			continue
		}
		delete(m.st.members, id)
		if p, ok := m.st.playlists[playlistID]; ok {
			if p.TrackCount > 0 {
				p.TrackCount--
			}
			p.UpdatedAt = time.Now()
			m.st.playlists[playlistID] = p
		}
		return nil
	}
	return ErrNotFound
}

// GetUserPreferences implements Store.
func (m *Memory) GetUserPreferences(ctx context.Context, userID string) (*db.UserPreferences, error) {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := m.st.prefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	p.FavoriteGenres = cloneStrings(p.FavoriteGenres)
	return &p, nil
}

// UpsertUserPreferences implements Store.
func (m *Memory) UpsertUserPreferences(ctx context.Context, p *db.UserPreferences) error {
	defer m.lock()()
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now()
	if existing, ok := m.st.prefs[p.UserID]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		m.st.nextPref++
		p.ID = m.st.nextPref
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.FavoriteGenres = cloneStrings(p.FavoriteGenres)

	stored := *p
	stored.FavoriteGenres = cloneStrings(p.FavoriteGenres)
	m.st.prefs[p.UserID] = stored
	return nil
}

var _ Store = (*Memory)(nil)
