package store

import (
	"context"
	"errors"
	"testing"

	"github.com/justestif/vibestream/internal/db"
)

func strPtr(s string) *string { return &s }

func seedTrack(t *testing.T, m *Memory, name string, genres ...string) *db.Track {
	t.Helper()
	tr := &db.Track{Name: name, Artist: "artist", Genres: genres}
	if err := m.CreateTrack(context.Background(), tr); err != nil {
		t.Fatalf("CreateTrack() error = %v", err)
	}
	return tr
}

func TestMemoryTrackCountFollowsMemberships(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p := &db.Playlist{UserID: "u1", Name: "Mix"}
	if err := m.CreatePlaylist(ctx, p); err != nil {
		t.Fatalf("CreatePlaylist() error = %v", err)
	}
	a := seedTrack(t, m, "a")
	b := seedTrack(t, m, "b")

	if _, err := m.AddTrackToPlaylist(ctx, p.ID, a.ID, 0); err != nil {
		t.Fatalf("AddTrackToPlaylist() error = %v", err)
	}
	if _, err := m.AddTrackToPlaylist(ctx, p.ID, b.ID, 1); err != nil {
		t.Fatalf("AddTrackToPlaylist() error = %v", err)
	}

	got, _ := m.GetPlaylist(ctx, p.ID)
	if got.TrackCount != 2 {
		t.Errorf("TrackCount = %d, want 2", got.TrackCount)
	}

	if err := m.RemoveTrackFromPlaylist(ctx, p.ID, a.ID); err != nil {
		t.Fatalf("RemoveTrackFromPlaylist() error = %v", err)
	}
	got, _ = m.GetPlaylist(ctx, p.ID)
	if got.TrackCount != 1 {
		t.Errorf("TrackCount after remove = %d, want 1", got.TrackCount)
	}

	members, _ := m.ListMemberships(ctx, p.ID)
	if len(members) != got.TrackCount {
		t.Errorf("memberships = %d, TrackCount = %d", len(members), got.TrackCount)
	}
	if members[0].Position != 1 {
		t.Errorf("remaining position = %d, want 1 (positions are not compacted)", members[0].Position)
	}
}

func TestMemoryAddTrackErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := &db.Playlist{UserID: "u1", Name: "Mix"}
	_ = m.CreatePlaylist(ctx, p)
	tr := seedTrack(t, m, "a")
	if _, err := m.AddTrackToPlaylist(ctx, p.ID, tr.ID, 0); err != nil {
		t.Fatalf("AddTrackToPlaylist() error = %v", err)
	}

	tests := []struct {
		name       string
		playlistID int64
		trackID    int64
		want       error
	}{
		{name: "duplicate pair", playlistID: p.ID, trackID: tr.ID, want: ErrConflict},
		{name: "unknown track", playlistID: p.ID, trackID: 999, want: ErrNotFound},
		{name: "unknown playlist", playlistID: 999, trackID: tr.ID, want: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.AddTrackToPlaylist(ctx, tt.playlistID, tt.trackID, 1)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddTrackToPlaylist() error = %v, want %v", err, tt.want)
			}
		})
	}

	got, _ := m.GetPlaylist(ctx, p.ID)
	if got.TrackCount != 1 {
		t.Errorf("TrackCount = %d after failed adds, want 1", got.TrackCount)
	}
}

func TestMemoryExternalIDUnique(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first := &db.Track{ExternalID: strPtr("spotify_abc"), Name: "a", Artist: "x"}
	if err := m.CreateTrack(ctx, first); err != nil {
		t.Fatalf("CreateTrack() error = %v", err)
	}
	dup := &db.Track{ExternalID: strPtr("spotify_abc"), Name: "b", Artist: "y"}
	if err := m.CreateTrack(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("CreateTrack(dup) error = %v, want ErrConflict", err)
	}

	got, err := m.GetTrackByExternalID(ctx, "spotify_abc")
	if err != nil {
		t.Fatalf("GetTrackByExternalID() error = %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("GetTrackByExternalID() ID = %d, want %d", got.ID, first.ID)
	}
}

func TestMemoryInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	boom := errors.New("boom")

	err := m.InTx(ctx, func(tx Store) error {
		p := &db.Playlist{UserID: "u1", Name: "Doomed"}
		if err := tx.CreatePlaylist(ctx, p); err != nil {
			return err
		}
		tr := &db.Track{Name: "t", Artist: "a"}
		if err := tx.CreateTrack(ctx, tr); err != nil {
			return err
		}
		if _, err := tx.AddTrackToPlaylist(ctx, p.ID, tr.ID, 0); err != nil {
			return err
		}
		// Nested InTx joins the enclosing transaction instead of deadlocking.
		return tx.InTx(ctx, func(Store) error { return boom })
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}

	playlists, _ := m.ListPlaylists(ctx, "u1")
	tracks, _ := m.ListTracks(ctx, 0)
	if len(playlists) != 0 || len(tracks) != 0 {
		t.Errorf("after rollback: %d playlists, %d tracks; want none", len(playlists), len(tracks))
	}

	// Identifiers keep advancing, like database sequences.
	p := &db.Playlist{UserID: "u1", Name: "Next"}
	_ = m.CreatePlaylist(ctx, p)
	if p.ID != 2 {
		t.Errorf("playlist ID after rollback = %d, want 2", p.ID)
	}
}

func TestMemoryInTxCommits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.InTx(ctx, func(tx Store) error {
		return tx.CreatePlaylist(ctx, &db.Playlist{UserID: "u1", Name: "Kept"})
	})
	if err != nil {
		t.Fatalf("InTx() error = %v", err)
	}
	playlists, _ := m.ListPlaylists(ctx, "u1")
	if len(playlists) != 1 {
		t.Errorf("ListPlaylists() = %d, want 1", len(playlists))
	}
}

func TestMemoryReconcile(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := &db.Playlist{UserID: "u1", Name: "Mix"}
	_ = m.CreatePlaylist(ctx, p)
	tr := seedTrack(t, m, "a")
	_, _ = m.AddTrackToPlaylist(ctx, p.ID, tr.ID, 0)

	// Simulate drift.
	drifted := m.st.playlists[p.ID]
	drifted.TrackCount = 5
	m.st.playlists[p.ID] = drifted

	n, err := m.ReconcileAllTrackCounts(ctx)
	if err != nil {
		t.Fatalf("ReconcileAllTrackCounts() error = %v", err)
	}
	if n != 1 {
		t.Errorf("ReconcileAllTrackCounts() = %d, want 1", n)
	}
	got, _ := m.ReconcileTrackCount(ctx, p.ID)
	if got.TrackCount != 1 {
		t.Errorf("TrackCount = %d, want 1", got.TrackCount)
	}

	if _, err := m.ReconcileTrackCount(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReconcileTrackCount(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryDeletePlaylistCascades(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := &db.Playlist{UserID: "u1", Name: "Mix"}
	_ = m.CreatePlaylist(ctx, p)
	tr := seedTrack(t, m, "a")
	_, _ = m.AddTrackToPlaylist(ctx, p.ID, tr.ID, 0)

	if err := m.DeletePlaylist(ctx, p.ID); err != nil {
		t.Fatalf("DeletePlaylist() error = %v", err)
	}
	if err := m.DeletePlaylist(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePlaylist() error = %v, want ErrNotFound", err)
	}
	members, _ := m.ListMemberships(ctx, p.ID)
	if len(members) != 0 {
		t.Errorf("memberships after delete = %d, want 0", len(members))
	}
	if _, err := m.GetTrack(ctx, tr.ID); err != nil {
		t.Errorf("track removed with playlist: %v", err)
	}
}

func TestMemoryUpsertPreservesCreatedAt(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	prefs := &db.UserPreferences{UserID: "u1", FavoriteGenres: []string{"jazz"}}
	if err := m.UpsertUserPreferences(ctx, prefs); err != nil {
		t.Fatalf("UpsertUserPreferences() error = %v", err)
	}
	created := prefs.CreatedAt

	again := &db.UserPreferences{UserID: "u1", FavoriteGenres: []string{"rock"}, SpotifyConnected: true}
	if err := m.UpsertUserPreferences(ctx, again); err != nil {
		t.Fatalf("UpsertUserPreferences() error = %v", err)
	}
	if again.ID != prefs.ID || !again.CreatedAt.Equal(created) {
		t.Errorf("upsert changed identity: id %d->%d created %v->%v", prefs.ID, again.ID, created, again.CreatedAt)
	}

	got, _ := m.GetUserPreferences(ctx, "u1")
	if len(got.FavoriteGenres) != 1 || got.FavoriteGenres[0] != "rock" || !got.SpotifyConnected {
		t.Errorf("GetUserPreferences() = %+v", got)
	}

	u := &db.User{ID: "u1", Email: strPtr("a@example.com")}
	_ = m.UpsertUser(ctx, u)
	other := &db.User{ID: "u2", Email: strPtr("A@example.com")}
	if err := m.UpsertUser(ctx, other); !errors.Is(err, ErrConflict) {
		t.Errorf("UpsertUser(duplicate email) error = %v, want ErrConflict", err)
	}
}

func TestMemoryListTracksOrderAndLimit(t *testing.T) {
	m := NewMemory()
	for _, name := range []string{"a", "b", "c"} {
		seedTrack(t, m, name)
	}

	all, _ := m.ListTracks(context.Background(), 0)
	if len(all) != 3 || all[0].Name != "a" || all[2].Name != "c" {
		t.Errorf("ListTracks(0) = %v", all)
	}
	two, _ := m.ListTracks(context.Background(), 2)
	if len(two) != 2 || two[1].Name != "b" {
		t.Errorf("ListTracks(2) = %v", two)
	}
}

func TestMemoryCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewMemory().ListTracks(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("ListTracks() error = %v, want context.Canceled", err)
	}
}

func TestMemoryMatchTracksByGenre(t *testing.T) {
	m := NewMemory()
	seedTrack(t, m, "a", "Smooth Jazz")
	seedTrack(t, m, "b", "rock")
	seedTrack(t, m, "c", "jazz-fusion", "funk")
	seedTrack(t, m, "d", "Acid Jazz")
	seedTrack(t, m, "e")

	tests := []struct {
		name      string
		favorites []string
		limit     int
		want      []string
	}{
		{"substring any case", []string{"jazz"}, 0, []string{"a", "c", "d"}},
		{"limit", []string{"jazz"}, 2, []string{"a", "c"}},
		{"any favorite", []string{"rock", "funk"}, 0, []string{"b", "c"}},
		{"no match", []string{"polka"}, 5, nil},
		{"no favorites", nil, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.MatchTracksByGenre(context.Background(), tt.favorites, tt.limit)
			if err != nil {
				t.Fatalf("MatchTracksByGenre() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("MatchTracksByGenre() returned %d tracks, want %d", len(got), len(tt.want))
			}
			for i, tr := range got {
				if tr.Name != tt.want[i] {
					t.Errorf("track %d = %q, want %q", i, tr.Name, tt.want[i])
				}
			}
		})
	}
}
