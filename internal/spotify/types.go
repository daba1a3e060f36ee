package spotify

import "strings"

// Image is one rendition of an artwork
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// ExternalURLs holds links to the Spotify web player
type ExternalURLs struct {
	Spotify string `json:"spotify"`
}

// User is the profile returned by /me
type User struct {
	ID           string       `json:"id"`
	DisplayName  string       `json:"display_name"`
	Email        string       `json:"email"`
	Country      string       `json:"country"`
	Product      string       `json:"product"`
	URI          string       `json:"uri"`
	Images       []Image      `json:"images"`
	ExternalURLs ExternalURLs `json:"external_urls"`
	Followers    struct {
		Total int `json:"total"`
	} `json:"followers"`
}

// Artist is a followed artist or a track credit
type Artist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	URI          string       `json:"uri"`
	Genres       []string     `json:"genres,omitempty"`
	Images       []Image      `json:"images,omitempty"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

// Playlist is a simplified playlist from a user's library
type Playlist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	URI          string       `json:"uri"`
	Public       bool         `json:"public"`
	Images       []Image      `json:"images"`
	ExternalURLs ExternalURLs `json:"external_urls"`
	Owner        struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	} `json:"owner"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

// Album is the album a track belongs to
type Album struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	URI    string  `json:"uri"`
	Images []Image `json:"images"`
}

// Track is a search result
type Track struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	URI          string       `json:"uri"`
	DurationMs   int          `json:"duration_ms"`
	Artists      []Artist     `json:"artists"`
	Album        Album        `json:"album"`
	ExternalURLs ExternalURLs `json:"external_urls"`
}

// ArtistNames joins the credited artists
func (t Track) ArtistNames() string {
	names := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		names[i] = a.Name
	}
	return strings.Join(names, ", ")
}

// Dashboard is everything the landing page shows
type Dashboard struct {
	Profile   *User      `json:"profile"`
	Artists   []Artist   `json:"artists"`
	Playlists []Playlist `json:"playlists"`
}

// FirstImageURL returns the URL of the largest image, which Spotify lists
// first, or "" when there is none.
func FirstImageURL(images []Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

// page is Spotify's paging object
type page[T any] struct {
	Items []T    `json:"items"`
	Next  string `json:"next"`
	Total int    `json:"total"`
}
