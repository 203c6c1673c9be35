package playlists

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/justestif/vibestream/internal/catalog"
	"github.com/justestif/vibestream/internal/db"
	"github.com/justestif/vibestream/internal/store"
)

// externalIDPrefix marks identifiers minted for sample tracks.
const externalIDPrefix = "spotify_"

// NewExternalID returns "spotify_" followed by 16 lowercase hex characters
// taken from a random UUID.
func NewExternalID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return externalIDPrefix + hex[:16]
}

// Materializer turns seed descriptors into stored tracks.
type Materializer struct {
	newID func() string
}

// NewMaterializer creates a Materializer that mints IDs with NewExternalID.
func NewMaterializer() *Materializer {
	return &Materializer{newID: NewExternalID}
}

// Materialize stores the track described by d and returns it. An empty
// externalID is replaced by a freshly minted one. If a track with the
// external ID already exists it is returned unchanged, including when a
// concurrent writer inserts it first.
func (m *Materializer) Materialize(ctx context.Context, st store.Store, d catalog.Descriptor, externalID string) (*db.Track, error) {
	if externalID == "" {
		externalID = m.newID()
	}

	existing, err := st.GetTrackByExternalID(ctx, externalID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("looking up track %s: %w", externalID, err)
	}

	album := d.Album
	duration := d.Duration
	image := catalog.TrackImageURL
	track := &db.Track{
		ExternalID: &externalID,
		Name:       d.Name,
		Artist:     d.Artist,
		Album:      &album,
		Duration:   &duration,
		ImageURL:   &image,
		PreviewURL: nil,
		Genres:     append([]string(nil), d.Genres...),
	}

	err = st.CreateTrack(ctx, track)
	if errors.Is(err, store.ErrConflict) {
		winner, lookupErr := st.GetTrackByExternalID(ctx, externalID)
		if lookupErr != nil {
			return nil, fmt.Errorf("re-reading track %s: %w", externalID, lookupErr)
		}
		return winner, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating track %q: %w", d.Name, err)
	}
	return track, nil
}
