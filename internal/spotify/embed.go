package spotify

import (
	"fmt"
	"strings"

	"github.com/dgellow/soporify/internal/urlutil"
)

var embeddableKinds = map[string]bool{
	"track":    true,
	"album":    true,
	"artist":   true,
	"playlist": true,
	"episode":  true,
	"show":     true,
}

// URI is a parsed spotify:<kind>:<id> resource identifier
type URI struct {
	Kind string
	ID   string
}

// ParseURI parses a Spotify URI such as spotify:track:6rqhFgbbKwnb9MLmUQDhG6
func ParseURI(raw string) (URI, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 || parts[0] != "spotify" {
		return URI{}, fmt.Errorf("invalid spotify uri %q: want spotify:<kind>:<id>", raw)
	}
	kind, id := parts[1], parts[2]
	if !embeddableKinds[kind] {
		return URI{}, fmt.Errorf("invalid spotify uri %q: unsupported kind %q", raw, kind)
	}
	if id == "" || !isBase62(id) {
		return URI{}, fmt.Errorf("invalid spotify uri %q: malformed id", raw)
	}
	return URI{Kind: kind, ID: id}, nil
}

func (u URI) String() string {
	return "spotify:" + u.Kind + ":" + u.ID
}

// EmbedURL maps uri onto the embed player under base
func EmbedURL(base, uri string) (string, error) {
	parsed, err := ParseURI(uri)
	if err != nil {
		return "", err
	}
	return urlutil.JoinPath(base, parsed.Kind, parsed.ID)
}

func isBase62(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}
