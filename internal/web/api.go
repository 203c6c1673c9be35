package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/playlists"
	"github.com/justestif/vibestream/internal/store"
)

type sessionKey struct{}

// requireSession rejects requests without a live session and stores the
// session on the request context.
func (h *Handlers) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := h.sessions.GetFromRequest(r)
		if session == nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUserID(r *http.Request) string {
	if s, ok := r.Context().Value(sessionKey{}).(*Session); ok {
		return s.UserID
	}
	return ""
}

// CurrentUser handles GET /api/auth/user.
func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.GetUser(r.Context(), currentUserID(r))
	if err != nil {
		handleError(w, r, err, "Failed to fetch user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type generateRequest struct {
	Mood   string   `json:"mood" validate:"required"`
	Genres []string `json:"genres"`
}

// GeneratePlaylist handles POST /api/playlists/generate.
func (h *Handlers) GeneratePlaylist(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, r, err, "")
		return
	}

	p, err := h.playlists.Generate(r.Context(), currentUserID(r), req.Mood, req.Genres)
	if err != nil {
		handleError(w, r, err, "Failed to generate playlist")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListPlaylists handles GET /api/playlists.
func (h *Handlers) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	list, err := h.playlists.List(r.Context(), currentUserID(r))
	if err != nil {
		handleError(w, r, err, "Failed to fetch playlists")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type createPlaylistRequest struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description *string  `json:"description"`
	Mood        *string  `json:"mood"`
	Genres      []string `json:"genres"`
	ImageURL    *string  `json:"imageUrl" validate:"omitempty,url"`
}

// CreatePlaylist handles POST /api/playlists.
func (h *Handlers) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, r, err, "")
		return
	}

	p, err := h.playlists.Create(r.Context(), currentUserID(r), playlists.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Mood:        req.Mood,
		Genres:      req.Genres,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		handleError(w, r, err, "Failed to create playlist")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetPlaylist handles GET /api/playlists/{id}.
func (h *Handlers) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err, "")
		return
	}
	p, err := h.playlists.Get(r.Context(), currentUserID(r), id)
	if err != nil {
		handleError(w, r, err, "Failed to fetch playlist")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updatePlaylistRequest struct {
	Name        *string  `json:"name" validate:"omitempty,max=200"`
	Description *string  `json:"description"`
	Mood        *string  `json:"mood"`
	Genres      []string `json:"genres"`
	ImageURL    *string  `json:"imageUrl" validate:"omitempty,url"`
}

// UpdatePlaylist handles PATCH /api/playlists/{id}.
func (h *Handlers) UpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err, "")
		return
	}
	var req updatePlaylistRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, r, err, "")
		return
	}

	p, err := h.playlists.Update(r.Context(), currentUserID(r), id, db.PlaylistUpdate{
		Name:        req.Name,
		Description: req.Description,
		Mood:        req.Mood,
		Genres:      req.Genres,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		handleError(w, r, err, "Failed to update playlist")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePlaylist handles DELETE /api/playlists/{id}.
func (h *Handlers) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err, "")
		return
	}
	if err := h.playlists.Delete(r.Context(), currentUserID(r), id); err != nil {
		handleError(w, r, err, "Failed to delete playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PlaylistTracks handles GET /api/playlists/{id}/tracks.
func (h *Handlers) PlaylistTracks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err, "")
		return
	}
	tracks, err := h.playlists.Tracks(r.Context(), currentUserID(r), id)
	if err != nil {
		handleError(w, r, err, "Failed to fetch playlist tracks")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

type addTrackRequest struct {
	TrackID  int64 `json:"trackId" validate:"required,gt=0"`
	Position *int  `json:"position" validate:"omitempty,gte=0"`
}

// AddTrack handles POST /api/playlists/{id}/tracks.
func (h *Handlers) AddTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err, "")
		return
	}
	var req addTrackRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, r, err, "")
		return
	}

	pt, err := h.playlists.AddTrack(r.Context(), currentUserID(r), id, req.TrackID, req.Position)
	if err != nil {
		handleError(w, r, err, "Failed to add track to playlist")
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

// RemoveTrack handles DELETE /api/playlists/{id}/tracks/{trackId}.
func (h *Handlers) RemoveTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err, "")
		return
	}
	trackID, err := pathID(r, "trackId")
	if err != nil {
		handleError(w, r, err, "")
		return
	}
	if err := h.playlists.RemoveTrack(r.Context(), currentUserID(r), id, trackID); err != nil {
		handleError(w, r, err, "Failed to remove track from playlist")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ReconcilePlaylist handles POST /api/playlists/{id}/reconcile.
func (h *Handlers) ReconcilePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleError(w, r, err, "")
		return
	}
	p, err := h.playlists.Reconcile(r.Context(), currentUserID(r), id)
	if err != nil {
		handleError(w, r, err, "Failed to reconcile playlist")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetPreferences handles GET /api/preferences. A user who never saved
// preferences gets an empty record.
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	prefs, err := h.store.GetUserPreferences(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		prefs, err = &db.UserPreferences{UserID: userID, FavoriteGenres: []string{}}, nil
	}
	if err != nil {
		handleError(w, r, err, "Failed to fetch preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

type preferencesRequest struct {
	FavoriteGenres   []string `json:"favoriteGenres" validate:"omitempty,dive,required"`
	SpotifyConnected *bool    `json:"spotifyConnected"`
	SpotifyUserID    *string  `json:"spotifyUserId"`
}

// SavePreferences handles POST /api/preferences. Fields left out of the
// body keep their stored values.
func (h *Handlers) SavePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decodeBody(r, &req); err != nil {
		handleError(w, r, err, "")
		return
	}

	ctx := r.Context()
	userID := currentUserID(r)
	var saved *db.UserPreferences
	err := h.store.InTx(ctx, func(st store.Store) error {
		prefs, err := st.GetUserPreferences(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			prefs = &db.UserPreferences{UserID: userID, FavoriteGenres: []string{}}
		} else if err != nil {
			return err
		}
		if req.FavoriteGenres != nil {
			prefs.FavoriteGenres = req.FavoriteGenres
		}
		if req.SpotifyConnected != nil {
			prefs.SpotifyConnected = *req.SpotifyConnected
		}
		if req.SpotifyUserID != nil {
			prefs.SpotifyUserID = req.SpotifyUserID
		}
		if err := st.UpsertUserPreferences(ctx, prefs); err != nil {
			return err
		}
		saved = prefs
		return nil
	})
	if err != nil {
		handleError(w, r, err, "Failed to save preferences")
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// Recommendations handles GET /api/recommendations?limit=N.
func (h *Handlers) Recommendations(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r.URL.Query().Get("limit"), h.maxLimit)
	tracks, err := h.recommender.Recommend(r.Context(), currentUserID(r), limit)
	if err != nil {
		handleError(w, r, err, "Failed to fetch recommendations")
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}
