package web

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"

	"github.com/justestif/vibestream/internal/catalog"
	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/playlists"
	"github.com/justestif/vibestream/internal/store"
)

type testEnv struct {
	server   *Server
	store    store.Store
	sessions *SessionStore
}

func newTestEnv(t *testing.T, st store.Store, maxLimit int) *testEnv {
	t.Helper()
	sessions := NewSessionStore()
	srv, err := NewServer(ServerConfig{
		Store:          st,
		Sessions:       sessions,
		MaxLimit:       maxLimit,
		Authenticator:  &fakeAuth{},
		ProfileFetcher: staticProfile(nil),
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return &testEnv{server: srv, store: st, sessions: sessions}
}

// login creates the user and a session, returning the session cookie.
func (e *testEnv) login(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	first := "Test"
	if err := e.store.UpsertUser(context.Background(), &db.User{ID: userID, FirstName: &first}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	s, err := e.sessions.Create(context.Background(), &oauth2.Token{AccessToken: "tok"}, userID, first)
	if err != nil {
		t.Fatalf("sessions.Create() error = %v", err)
	}
	return &http.Cookie{Name: sessionCookieName, Value: s.ID}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAPIRequiresSession(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), 100)

	paths := []struct{ method, path string }{
		{http.MethodPost, "/api/playlists/generate"},
		{http.MethodGet, "/api/recommendations"},
		{http.MethodGet, "/api/playlists"},
		{http.MethodGet, "/api/auth/user"},
	}
	for _, p := range paths {
		rec := env.do(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, rec.Code)
		}
	}

	bogus := &http.Cookie{Name: sessionCookieName, Value: "nope"}
	if rec := env.do(t, http.MethodGet, "/api/playlists", "", bogus); rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown session status = %d, want 401", rec.Code)
	}
}

func TestGeneratePlaylist(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), 100)
	cookie := env.login(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/playlists/generate", `{"mood":"happy","genres":["pop"]}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	p := decode[db.Playlist](t, rec)
	if p.Name != "Happy Vibes" {
		t.Errorf("Name = %q, want Happy Vibes", p.Name)
	}
	if p.TrackCount != 4 {
		t.Errorf("TrackCount = %d, want 4", p.TrackCount)
	}
	if p.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", p.UserID)
	}
	if len(p.Genres) != 1 || p.Genres[0] != "pop" {
		t.Errorf("Genres = %v, want [pop]", p.Genres)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}

	tracks := env.do(t, http.MethodGet, "/api/playlists/1/tracks", "", cookie)
	if got := decode[[]db.Track](t, tracks); len(got) != 4 {
		t.Errorf("playlist has %d tracks, want 4", len(got))
	}
}

func TestGeneratePlaylistValidation(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), 100)
	cookie := env.login(t, "user-1")

	tests := []struct {
		name string
		body string
	}{
		{"missing mood", `{}`},
		{"blank mood", `{"mood":"   "}`},
		{"malformed json", `{"mood":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/playlists/generate", tt.body, cookie)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if msg := decode[errorResponse](t, rec).Message; msg == "" {
				t.Error("empty error message")
			}
		})
	}

	rec := env.do(t, http.MethodPost, "/api/playlists/generate", `{}`, cookie)
	if msg := decode[errorResponse](t, rec).Message; msg != "Mood is required" {
		t.Errorf("message = %q, want Mood is required", msg)
	}

	list := env.do(t, http.MethodGet, "/api/playlists", "", cookie)
	if got := decode[[]db.Playlist](t, list); len(got) != 0 {
		t.Errorf("rejected requests created %d playlists", len(got))
	}
}

// outageStore fails every playlist insert.
type outageStore struct {
	store.Store
}

func (s outageStore) CreatePlaylist(context.Context, *db.Playlist) error {
	return &store.PersistenceError{Op: "CreatePlaylist", Err: errors.New("connection reset")}
}

func (s outageStore) InTx(_ context.Context, fn func(store.Store) error) error {
	return fn(s)
}

func TestGeneratePlaylistFailure(t *testing.T) {
	env := newTestEnv(t, outageStore{Store: store.NewMemory()}, 100)
	cookie := env.login(t, "user-1")

	rec := env.do(t, http.MethodPost, "/api/playlists/generate", `{"mood":"sad"}`, cookie)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if msg := decode[errorResponse](t, rec).Message; msg != "Failed to generate playlist" {
		t.Errorf("message = %q", msg)
	}
}

func seedCatalog(t *testing.T, st store.Store) {
	t.Helper()
	svc := playlists.New(st)
	for _, mood := range catalog.Moods() {
		if _, err := svc.Generate(context.Background(), "seed", string(mood), nil); err != nil {
			t.Fatalf("Generate(%s) error = %v", mood, err)
		}
	}
}

func TestRecommendationsLimit(t *testing.T) {
	st := store.NewMemory()
	seedCatalog(t, st)
	env := newTestEnv(t, st, 12)
	cookie := env.login(t, "user-1")

	tests := []struct {
		query string
		want  int
	}{
		{"", 10},
		{"?limit=abc", 10},
		{"?limit=0", 10},
		{"?limit=-3", 10},
		{"?limit=3", 3},
		{"?limit=1000", 12},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/recommendations"+tt.query, "", cookie)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := decode[[]db.Track](t, rec); len(got) != tt.want {
				t.Errorf("got %d tracks, want %d", len(got), tt.want)
			}
		})
	}
}

func TestRecommendationsEmptyStore(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), 100)
	cookie := env.login(t, "user-1")

	rec := env.do(t, http.MethodGet, "/api/recommendations", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestPreferencesDriveRecommendations(t *testing.T) {
	st := store.NewMemory()
	seedCatalog(t, st)
	env := newTestEnv(t, st, 100)
	cookie := env.login(t, "user-1")

	empty := decode[db.UserPreferences](t, env.do(t, http.MethodGet, "/api/preferences", "", cookie))
	if len(empty.FavoriteGenres) != 0 || empty.SpotifyConnected {
		t.Errorf("default preferences = %+v", empty)
	}

	rec := env.do(t, http.MethodPost, "/api/preferences", `{"favoriteGenres":["Jazz"]}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// Omitted fields keep their values.
	if rec := env.do(t, http.MethodPost, "/api/preferences", `{"spotifyConnected":true}`, cookie); rec.Code != http.StatusOK {
		t.Fatalf("second save status = %d", rec.Code)
	}
	saved := decode[db.UserPreferences](t, env.do(t, http.MethodGet, "/api/preferences", "", cookie))
	if len(saved.FavoriteGenres) != 1 || saved.FavoriteGenres[0] != "Jazz" || !saved.SpotifyConnected {
		t.Errorf("preferences = %+v", saved)
	}

	recs := decode[[]db.Track](t, env.do(t, http.MethodGet, "/api/recommendations?limit=2", "", cookie))
	if len(recs) != 2 || recs[0].Name != "Coffee Shop Jazz" {
		t.Errorf("recommendations = %+v, want jazz first", recs)
	}
}

func TestPlaylistLifecycle(t *testing.T) {
	st := store.NewMemory()
	env := newTestEnv(t, st, 100)
	cookie := env.login(t, "user-1")
	ctx := context.Background()

	track := &db.Track{Name: "Song", Artist: "Band", Genres: []string{"rock"}}
	if err := st.CreateTrack(ctx, track); err != nil {
		t.Fatalf("CreateTrack() error = %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/playlists", `{"name":"Road Trip","genres":["rock"]}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	p := decode[db.Playlist](t, rec)

	if rec := env.do(t, http.MethodPost, "/api/playlists", `{"description":"x"}`, cookie); rec.Code != http.StatusBadRequest {
		t.Errorf("create without name status = %d, want 400", rec.Code)
	}

	base := "/api/playlists/" + itoa(p.ID)

	rec = env.do(t, http.MethodPatch, base, `{"name":"Night Drive"}`, cookie)
	if got := decode[db.Playlist](t, rec); got.Name != "Night Drive" || len(got.Genres) != 1 {
		t.Errorf("patched playlist = %+v", got)
	}

	rec = env.do(t, http.MethodPost, base+"/tracks", `{"trackId":`+itoa(track.ID)+`}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("add track status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodPost, base+"/tracks", `{"trackId":`+itoa(track.ID)+`}`, cookie); rec.Code != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, base+"/tracks", `{"trackId":999}`, cookie); rec.Code != http.StatusNotFound {
		t.Errorf("unknown track status = %d, want 404", rec.Code)
	}

	got := decode[db.Playlist](t, env.do(t, http.MethodGet, base, "", cookie))
	if got.TrackCount != 1 {
		t.Errorf("TrackCount = %d, want 1", got.TrackCount)
	}

	if rec := env.do(t, http.MethodDelete, base+"/tracks/"+itoa(track.ID), "", cookie); rec.Code != http.StatusOK {
		t.Errorf("remove track status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, base+"/tracks/"+itoa(track.ID), "", cookie); rec.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rec.Code)
	}

	reconciled := decode[db.Playlist](t, env.do(t, http.MethodPost, base+"/reconcile", "", cookie))
	if reconciled.TrackCount != 0 {
		t.Errorf("reconciled TrackCount = %d, want 0", reconciled.TrackCount)
	}

	rec = env.do(t, http.MethodDelete, base, "", cookie)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Errorf("delete = %d %s", rec.Code, rec.Body.String())
	}
	if rec := env.do(t, http.MethodGet, base, "", cookie); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestPlaylistsAreOwnerScoped(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), 100)
	owner := env.login(t, "owner")
	other := env.login(t, "other")

	rec := env.do(t, http.MethodPost, "/api/playlists/generate", `{"mood":"chill"}`, owner)
	p := decode[db.Playlist](t, rec)
	path := "/api/playlists/" + itoa(p.ID)

	if rec := env.do(t, http.MethodGet, path, "", other); rec.Code != http.StatusNotFound {
		t.Errorf("foreign get status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, path, "", other); rec.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %d, want 404", rec.Code)
	}
	if list := decode[[]db.Playlist](t, env.do(t, http.MethodGet, "/api/playlists", "", other)); len(list) != 0 {
		t.Errorf("other user sees %d playlists", len(list))
	}
	if rec := env.do(t, http.MethodGet, "/api/playlists/abc", "", owner); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}
}

func TestCurrentUser(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), 100)
	cookie := env.login(t, "user-1")

	rec := env.do(t, http.MethodGet, "/api/auth/user", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if u := decode[db.User](t, rec); u.ID != "user-1" {
		t.Errorf("user = %+v", u)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, store.NewMemory(), 100)
	rec := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw  string
		max  int
		want int
	}{
		{"", 100, 10},
		{"x", 100, 10},
		{"0", 100, 10},
		{"-1", 100, 10},
		{" 7 ", 100, 7},
		{"500", 100, 100},
		{"500", 0, 500},
	}
	for _, tt := range tests {
		if got := parseLimit(tt.raw, tt.max); got != tt.want {
			t.Errorf("parseLimit(%q, %d) = %d, want %d", tt.raw, tt.max, got, tt.want)
		}
	}
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
