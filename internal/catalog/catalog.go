// Package catalog holds the static sample tracks used to populate generated
// playlists, keyed by mood.
package catalog

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Mood names a seed set.
type Mood string

// Known moods.
const (
	Happy     Mood = "happy"
	Chill     Mood = "chill"
	Energetic Mood = "energetic"
	Sad       Mood = "sad"
	Focus     Mood = "focus"
	Party     Mood = "party"
)

// Artwork used for generated playlists and sample tracks.
const (
	PlaylistImageURL = "https://images.unsplash.com/photo-1493225457124-a3eb161ffa5f?ixlib=rb-4.0.3&auto=format&fit=crop&w=400&h=400"
	TrackImageURL    = "https://images.unsplash.com/photo-1493225457124-a3eb161ffa5f?ixlib=rb-4.0.3&auto=format&fit=crop&w=300&h=300"
)

// Descriptor describes a sample track before it is stored.
type Descriptor struct {
	Name     string
	Artist   string
	Album    string
	Duration int // seconds
	Genres   []string
}

var seeds = map[Mood][]Descriptor{
	Happy: {
		{"Blinding Lights", "The Weeknd", "After Hours", 200, []string{"pop", "synthwave"}},
		{"Good 4 U", "Olivia Rodrigo", "SOUR", 178, []string{"pop", "rock"}},
		{"Levitating", "Dua Lipa", "Future Nostalgia", 203, []string{"pop", "disco"}},
		{"Stay", "The Kid LAROI & Justin Bieber", "F*CK LOVE 3", 141, []string{"pop", "hip-hop"}},
	},
	Chill: {
		{"Lofi Study Beat #1", "ChillHop Music", "Study Sessions", 180, []string{"lofi", "hip-hop"}},
		{"Sunset Drive", "Synthwave Dreams", "Neon Nights", 195, []string{"synthwave", "electronic"}},
		{"Ocean Waves", "Ambient Collective", "Nature Sounds", 240, []string{"ambient", "new age"}},
		{"Coffee Shop Jazz", "Jazz Cafe", "Afternoon Sessions", 165, []string{"jazz", "instrumental"}},
	},
	Energetic: {
		{"Thunder", "Imagine Dragons", "Evolve", 187, []string{"rock", "pop"}},
		{"Pump It Up", "Electronic Energy", "Workout Hits", 210, []string{"electronic", "dance"}},
		{"Eye of the Tiger", "Survivor", "Eye of the Tiger", 245, []string{"rock", "classic rock"}},
		{"Stronger", "Kanye West", "Graduation", 311, []string{"hip-hop", "electronic"}},
	},
	Sad: {
		{"Someone Like You", "Adele", "21", 285, []string{"pop", "ballad"}},
		{"Mad World", "Gary Jules", "Trading Snakeoil for Wolftickets", 193, []string{"alternative", "indie"}},
		{"Hurt", "Johnny Cash", "American IV: The Man Comes Around", 218, []string{"country", "alternative"}},
		{"Black", "Pearl Jam", "Ten", 343, []string{"grunge", "rock"}},
	},
	Focus: {
		{"Weightless", "Marconi Union", "Ambient Works", 480, []string{"ambient", "electronic"}},
		{"Deep Focus", "Study Music Project", "Concentration", 300, []string{"ambient", "instrumental"}},
		{"White Noise Rain", "Nature Sounds", "Focus Sessions", 600, []string{"ambient", "nature"}},
		{"Minimal Piano", "Neo Classical", "Modern Minimalism", 180, []string{"classical", "minimalist"}},
	},
	Party: {
		{"Uptown Funk", "Mark Ronson ft. Bruno Mars", "Uptown Special", 269, []string{"funk", "pop"}},
		{"Don't Stop Me Now", "Queen", "Jazz", 229, []string{"rock", "pop"}},
		{"Dancing Queen", "ABBA", "Arrival", 230, []string{"disco", "pop"}},
		{"I Gotta Feeling", "The Black Eyed Peas", "The E.N.D.", 285, []string{"pop", "dance"}},
	},
}

var names = map[Mood]string{
	Happy:     "Happy Vibes",
	Chill:     "Chill Beats",
	Energetic: "Energy Boost",
	Sad:       "Melancholy Moments",
	Focus:     "Focus Flow",
	Party:     "Party Mix",
}

// Moods returns the known moods in display order.
func Moods() []Mood {
	return []Mood{Happy, Chill, Energetic, Sad, Focus, Party}
}

// IsKnown reports whether mood has its own seed set.
func IsKnown(mood string) bool {
	_, ok := seeds[Mood(mood)]
	return ok
}

// Tracks returns the seed set for mood, falling back to the happy set for
// unknown moods. The result is a copy the caller may modify.
func Tracks(mood string) []Descriptor {
	src, ok := seeds[Mood(mood)]
	if !ok {
		src = seeds[Happy]
	}
	out := make([]Descriptor, len(src))
	for i, d := range src {
		d.Genres = append([]string(nil), d.Genres...)
		out[i] = d
	}
	return out
}

// PlaylistName returns the display name for a mood. Unknown moods get their
// first letter upper-cased followed by " Mix".
func PlaylistName(mood string) string {
	if name, ok := names[Mood(mood)]; ok {
		return name
	}
	r, size := utf8.DecodeRuneInString(mood)
	if r == utf8.RuneError {
		return strings.TrimSpace(mood + " Mix")
	}
	return string(unicode.ToUpper(r)) + mood[size:] + " Mix"
}

// Description returns the generated playlist description for a mood.
func Description(mood string) string {
	return fmt.Sprintf("Generated playlist for your %s mood", mood)
}
