package db

import (
	"time"
)

// User represents an identity-provider user profile.
type User struct {
	ID              string    `json:"id"`
	Email           *string   `json:"email"`           // nullable
	FirstName       *string   `json:"firstName"`       // nullable
	LastName        *string   `json:"lastName"`        // nullable
	ProfileImageURL *string   `json:"profileImageUrl"` // nullable
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Session represents an authenticated web session.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Playlist is a named, ordered set of tracks owned by one user.
// TrackCount mirrors the number of playlist_tracks rows for the playlist.
type Playlist struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description *string   `json:"description"` // nullable
	Mood        *string   `json:"mood"`        // nullable - manual playlists may have none
	Genres      []string  `json:"genres"`
	ImageURL    *string   `json:"imageUrl"` // nullable
	TrackCount  int       `json:"trackCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PlaylistUpdate holds the mutable playlist fields. Nil fields are left unchanged.
type PlaylistUpdate struct {
	Name        *string
	Description *string
	Mood        *string
	Genres      []string
	ImageURL    *string
}

// Track is a global catalog entry shared by reference across playlists.
type Track struct {
	ID         int64     `json:"id"`
	ExternalID *string   `json:"spotifyId"` // nullable, unique when present
	Name       string    `json:"name"`
	Artist     string    `json:"artist"`
	Album      *string   `json:"album"`    // nullable
	Duration   *int      `json:"duration"` // nullable, seconds
	ImageURL   *string   `json:"imageUrl"`
	PreviewURL *string   `json:"previewUrl"`
	Genres     []string  `json:"genres"`
	CreatedAt  time.Time `json:"createdAt"`
}

// PlaylistTrack records one track's inclusion in a playlist at a position.
type PlaylistTrack struct {
	ID         int64     `json:"id"`
	PlaylistID int64     `json:"playlistId"`
	TrackID    int64     `json:"trackId"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserPreferences holds the single preferences row for a user.
type UserPreferences struct {
	ID               int64     `json:"id"`
	UserID           string    `json:"userId"`
	FavoriteGenres   []string  `json:"favoriteGenres"`
	SpotifyConnected bool      `json:"spotifyConnected"`
	SpotifyUserID    *string   `json:"spotifyUserId"` // nullable
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
