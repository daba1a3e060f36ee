package server

import (
	_ "embed"
	"html/template"
	"net/http"

	"github.com/dgellow/soporify/internal/log"
)

//go:embed templates/dashboard.html
var dashboardPageTemplateHTML string

//go:embed templates/message.html
var messagePageTemplateHTML string

var dashboardPageTemplate = template.Must(template.New("dashboard").Parse(dashboardPageTemplateHTML))
var messagePageTemplate = template.Must(template.New("message").Parse(messagePageTemplateHTML))

// DashboardPageData represents the data for the authenticated landing page
type DashboardPageData struct {
	DisplayName   string
	Email         string
	AvatarURL     string
	ProfileURL    string
	PlaylistCount int
	ArtistCount   int
	Artists       []ArtistView
	Playlists     []PlaylistView
	Query         string
	Tracks        []TrackView
	Player        string // embed URL of the selected track or playlist
	PagePath      string
	Code          string
	CSRFToken     string
	LogoutPath    string
}

// ArtistView is one followed artist
type ArtistView struct {
	Name     string
	ImageURL string
	URL      string
}

// PlaylistView is one playlist with a link that loads it in the player
type PlaylistView struct {
	Name     string
	ImageURL string
	PlayURL  string
}

// TrackView is one search result
type TrackView struct {
	Name     string
	Artists  string
	ImageURL string
	PlayURL  string
}

// MessagePageData represents a status or error page
type MessagePageData struct {
	Title       string
	Message     string
	MessageType string // "success" or "error"
	Detail      string
	LinkURL     string
	LinkText    string
}

func renderPage(w http.ResponseWriter, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.Execute(w, data); err != nil {
		log.LogErrorWithFields("server", "Failed to render page", map[string]any{
			"template": tmpl.Name(),
			"error":    err.Error(),
		})
	}
}
