package playlists

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/justestif/vibestream/internal/catalog"
	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/store"
)

// failingStore fails the Nth AddTrackToPlaylist call, including calls made
// through a transaction view.
type failingStore struct {
	store.Store
	failAt int
	calls  *int
}

var errDiskFull = errors.New("disk full")

func newFailingStore(inner store.Store, failAt int) *failingStore {
	return &failingStore{Store: inner, failAt: failAt, calls: new(int)}
}

func (f *failingStore) AddTrackToPlaylist(ctx context.Context, playlistID, trackID int64, position int) (*db.PlaylistTrack, error) {
	*f.calls++
	if *f.calls == f.failAt {
		return nil, errDiskFull
	}
	return f.Store.AddTrackToPlaylist(ctx, playlistID, trackID, position)
}

func (f *failingStore) InTx(ctx context.Context, fn func(store.Store) error) error {
	return f.Store.InTx(ctx, func(tx store.Store) error {
		return fn(&failingStore{Store: tx, failAt: f.failAt, calls: f.calls})
	})
}

func TestGenerateEveryMood(t *testing.T) {
	for _, mood := range catalog.Moods() {
		t.Run(string(mood), func(t *testing.T) {
			ctx := context.Background()
			st := store.NewMemory()
			svc := New(st)

			p, err := svc.Generate(ctx, "user-1", string(mood), []string{"pop"})
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}

			seeds := catalog.Tracks(string(mood))
			if p.TrackCount != len(seeds) {
				t.Errorf("TrackCount = %d, want %d", p.TrackCount, len(seeds))
			}
			if p.Name != catalog.PlaylistName(string(mood)) {
				t.Errorf("Name = %q, want %q", p.Name, catalog.PlaylistName(string(mood)))
			}
			if p.Mood == nil || *p.Mood != string(mood) {
				t.Errorf("Mood = %v, want %q", p.Mood, mood)
			}
			if p.ImageURL == nil || *p.ImageURL != catalog.PlaylistImageURL {
				t.Errorf("ImageURL = %v", p.ImageURL)
			}

			members, err := st.ListMemberships(ctx, p.ID)
			if err != nil {
				t.Fatalf("ListMemberships() error = %v", err)
			}
			if len(members) != p.TrackCount {
				t.Fatalf("memberships = %d, TrackCount = %d", len(members), p.TrackCount)
			}
			for i, m := range members {
				if m.Position != i {
					t.Errorf("membership %d position = %d", i, m.Position)
				}
			}

			tracks, _ := st.GetPlaylistTracks(ctx, p.ID)
			for i, tr := range tracks {
				if tr.Name != seeds[i].Name || tr.Artist != seeds[i].Artist {
					t.Errorf("track %d = %s/%s, want %s/%s", i, tr.Name, tr.Artist, seeds[i].Name, seeds[i].Artist)
				}
				if tr.ExternalID == nil || !strings.HasPrefix(*tr.ExternalID, "spotify_") {
					t.Errorf("track %d external id = %v", i, tr.ExternalID)
				}
				if tr.PreviewURL != nil {
					t.Errorf("track %d preview url = %v, want nil", i, *tr.PreviewURL)
				}
			}
		})
	}
}

func TestGenerateUnknownMoodUsesHappyTracks(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	p, err := New(st).Generate(ctx, "user-1", "xyz", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if p.Name != "Xyz Mix" {
		t.Errorf("Name = %q, want Xyz Mix", p.Name)
	}
	if p.Genres == nil || len(p.Genres) != 0 {
		t.Errorf("Genres = %#v, want empty slice", p.Genres)
	}

	tracks, _ := st.GetPlaylistTracks(ctx, p.ID)
	happy := catalog.Tracks("happy")
	if len(tracks) != len(happy) {
		t.Fatalf("tracks = %d, want %d", len(tracks), len(happy))
	}
	for i := range tracks {
		if tracks[i].Name != happy[i].Name {
			t.Errorf("track %d = %q, want %q", i, tracks[i].Name, happy[i].Name)
		}
	}
}

func TestGenerateRejectsEmptyMood(t *testing.T) {
	tests := []struct {
		name string
		mood string
	}{
		{name: "empty", mood: ""},
		{name: "whitespace", mood: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := store.NewMemory()

			_, err := New(st).Generate(ctx, "user-1", tt.mood, nil)
			var ve *store.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Generate() error = %v, want ValidationError", err)
			}
			if ve.Field != "mood" {
				t.Errorf("Field = %q, want mood", ve.Field)
			}

			playlists, _ := st.ListPlaylists(ctx, "user-1")
			tracks, _ := st.ListTracks(ctx, 0)
			if len(playlists) != 0 || len(tracks) != 0 {
				t.Errorf("rows written: %d playlists, %d tracks", len(playlists), len(tracks))
			}
		})
	}
}

func TestGenerateTwiceIsIndependent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := New(st)

	first, err := svc.Generate(ctx, "user-1", "chill", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	second, err := svc.Generate(ctx, "user-1", "chill", nil)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if first.ID == second.ID {
		t.Fatal("second generation reused playlist id")
	}
	if first.TrackCount != 4 || second.TrackCount != 4 {
		t.Errorf("TrackCounts = %d, %d; want 4, 4", first.TrackCount, second.TrackCount)
	}

	a, _ := st.GetPlaylistTracks(ctx, first.ID)
	b, _ := st.GetPlaylistTracks(ctx, second.ID)
	for i := range a {
		if a[i].ID == b[i].ID {
			t.Errorf("track %d shared between generations", i)
		}
	}

	all, _ := st.ListTracks(ctx, 0)
	if len(all) != 8 {
		t.Errorf("stored tracks = %d, want 8", len(all))
	}
}

func TestGenerateRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := New(newFailingStore(mem, 3))

	_, err := svc.Generate(ctx, "user-1", "happy", nil)
	if !errors.Is(err, errDiskFull) {
		t.Fatalf("Generate() error = %v, want disk full", err)
	}

	playlists, _ := mem.ListPlaylists(ctx, "user-1")
	tracks, _ := mem.ListTracks(ctx, 0)
	if len(playlists) != 0 || len(tracks) != 0 {
		t.Errorf("after failure: %d playlists, %d tracks; want none", len(playlists), len(tracks))
	}
}

func TestGenerateBestEffortKeepsPartialWork(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := New(newFailingStore(mem, 3), WithBestEffort())

	if _, err := svc.Generate(ctx, "user-1", "happy", nil); !errors.Is(err, errDiskFull) {
		t.Fatalf("Generate() error = %v, want disk full", err)
	}

	playlists, _ := mem.ListPlaylists(ctx, "user-1")
	if len(playlists) != 1 {
		t.Fatalf("playlists = %d, want 1", len(playlists))
	}
	p := playlists[0]
	members, _ := mem.ListMemberships(ctx, p.ID)
	if p.TrackCount != 2 || len(members) != 2 {
		t.Errorf("TrackCount = %d, memberships = %d; want 2, 2", p.TrackCount, len(members))
	}
}

func TestMaterializerReusesExistingTrack(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	m := NewMaterializer()
	d := catalog.Tracks("focus")[0]

	first, err := m.Materialize(ctx, st, d, "spotify_0000000000000001")
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	second, err := m.Materialize(ctx, st, d, "spotify_0000000000000001")
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("Materialize() created a duplicate: %d vs %d", first.ID, second.ID)
	}

	all, _ := st.ListTracks(ctx, 0)
	if len(all) != 1 {
		t.Errorf("stored tracks = %d, want 1", len(all))
	}
}

// racingStore pretends another writer inserted the track between lookup and insert.
type racingStore struct {
	store.Store
	raced bool
}

func (r *racingStore) CreateTrack(ctx context.Context, t *db.Track) error {
	if !r.raced {
		r.raced = true
		winner := *t
		if err := r.Store.CreateTrack(ctx, &winner); err != nil {
			return err
		}
	}
	return r.Store.CreateTrack(ctx, t)
}

func TestMaterializerConflictReturnsWinner(t *testing.T) {
	ctx := context.Background()
	st := &racingStore{Store: store.NewMemory()}
	d := catalog.Tracks("sad")[0]

	got, err := NewMaterializer().Materialize(ctx, st, d, "spotify_00000000000000aa")
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if got.ID != 1 {
		t.Errorf("Materialize() ID = %d, want the winner's id 1", got.ID)
	}
}

func TestNewExternalID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewExternalID()
		if len(id) != len("spotify_")+16 {
			t.Fatalf("NewExternalID() = %q, wrong length", id)
		}
		suffix := strings.TrimPrefix(id, "spotify_")
		if strings.Trim(suffix, "0123456789abcdef") != "" {
			t.Fatalf("NewExternalID() = %q, want lowercase hex suffix", id)
		}
		if seen[id] {
			t.Fatalf("NewExternalID() repeated %q", id)
		}
		seen[id] = true
	}
}
