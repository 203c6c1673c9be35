package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/logging"
	"github.com/justestif/vibestream/internal/playlists"
	"github.com/justestif/vibestream/internal/recommend"
	internalspotify "github.com/justestif/vibestream/internal/spotify"
	"github.com/justestif/vibestream/internal/store"
)

const stateCookieName = "oauth_state"

// Authenticator is the part of spotifyauth.Authenticator the handlers use.
type Authenticator interface {
	AuthURL(state string, opts ...oauth2.AuthCodeOption) string
	Token(ctx context.Context, state string, r *http.Request, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	Client(ctx context.Context, token *oauth2.Token) *http.Client
}

// ProfileFetcher loads the signed-in account using an authorized client.
type ProfileFetcher func(ctx context.Context, client *http.Client) (*internalspotify.Profile, error)

func fetchSpotifyProfile(ctx context.Context, client *http.Client) (*internalspotify.Profile, error) {
	return internalspotify.New(spotify.New(client)).Profile(ctx)
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth         Authenticator
	fetchProfile ProfileFetcher
	sessions     SessionManager
	store        store.Store
	playlists    *playlists.Service
	recommender  *recommend.Service
	maxLimit     int
}

// Login initiates the Spotify OAuth flow (GET /auth/login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	state, err := generateOAuthState()
	if err != nil {
		http.Error(w, "Failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes
	})

	http.Redirect(w, r, h.auth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles the OAuth callback from Spotify (GET /callback). It
// records the account as a user, marks the Spotify connection in the
// user's preferences, and starts a session.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil {
		http.Error(w, "Missing state cookie", http.StatusBadRequest)
		return
	}

	state := r.URL.Query().Get("state")
	if state != stateCookie.Value {
		http.Error(w, "State mismatch", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Error(w, fmt.Sprintf("Spotify auth error: %s", errMsg), http.StatusBadRequest)
		return
	}

	token, err := h.auth.Token(ctx, state, r)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("token exchange failed")
		http.Error(w, "Failed to get token", http.StatusInternalServerError)
		return
	}

	profile, err := h.fetchProfile(ctx, h.auth.Client(ctx, token))
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("fetching spotify profile failed")
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	user, err := h.recordLogin(ctx, profile)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("user_id", profile.ID).Msg("recording login failed")
		http.Error(w, "Failed to save user", http.StatusInternalServerError)
		return
	}

	session, err := h.sessions.Create(ctx, token, user.ID, displayName(user))
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("creating session failed")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	h.sessions.SetCookie(w, session)
	logging.Ctx(ctx).Info().Str("user_id", user.ID).Msg("user signed in")
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// recordLogin upserts the user row and flags the Spotify connection,
// keeping any favorite genres already stored.
func (h *Handlers) recordLogin(ctx context.Context, p *internalspotify.Profile) (*db.User, error) {
	user := &db.User{
		ID:              p.ID,
		Email:           optional(p.Email),
		FirstName:       optional(p.FirstName),
		LastName:        optional(p.LastName),
		ProfileImageURL: optional(p.ImageURL),
	}

	err := h.store.InTx(ctx, func(st store.Store) error {
		if err := st.UpsertUser(ctx, user); err != nil {
			return fmt.Errorf("upserting user: %w", err)
		}

		prefs, err := st.GetUserPreferences(ctx, user.ID)
		if errors.Is(err, store.ErrNotFound) {
			prefs = &db.UserPreferences{UserID: user.ID, FavoriteGenres: []string{}}
		} else if err != nil {
			return fmt.Errorf("loading preferences: %w", err)
		}
		prefs.SpotifyConnected = true
		prefs.SpotifyUserID = &user.ID
		if err := st.UpsertUserPreferences(ctx, prefs); err != nil {
			return fmt.Errorf("saving preferences: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Logout clears the session and redirects to home (POST /auth/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessions.GetFromRequest(r); session != nil {
		h.sessions.Delete(r.Context(), session.ID)
	}

	h.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// generateOAuthState creates a random state string for OAuth.
func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
