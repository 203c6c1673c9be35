// Package spotify wraps the Spotify Web API calls vibestream makes on
// behalf of a signed-in user.
package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
)

// Client wraps the Spotify API client with convenience methods.
type Client struct {
	api *spotify.Client
}

// New creates a new Spotify client wrapper.
// The underlying client should already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// Profile is the subset of the Spotify account stored as a user record.
type Profile struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	ImageURL  string
}

// Profile fetches the current user's account details.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	p := profileFromUser(user)
	return &p, nil
}

func profileFromUser(u *spotify.PrivateUser) Profile {
	first, last := SplitName(u.DisplayName)
	p := Profile{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: first,
		LastName:  last,
	}
	if len(u.Images) > 0 {
		p.ImageURL = u.Images[0].URL
	}
	return p
}

// SplitName splits a display name at the first space. Single-word names
// have no last name.
func SplitName(display string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(display), " ")
	return first, strings.TrimSpace(last)
}
