package server

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dgellow/soporify/internal/auth"
	"github.com/dgellow/soporify/internal/cookie"
	"github.com/dgellow/soporify/internal/crypto"
	"github.com/dgellow/soporify/internal/envutil"
	jsonwriter "github.com/dgellow/soporify/internal/json"
	"github.com/dgellow/soporify/internal/log"
	"github.com/dgellow/soporify/internal/spotify"
	"github.com/dgellow/soporify/internal/storage"
)

// Handlers serves the redirect URI page and the session API
type Handlers struct {
	manager   *auth.Manager
	store     storage.Store
	newClient ClientFactory
	csrf      crypto.CSRFProtection
	pagePath  string
	realm     string
}

// managerFor returns the lifecycle manager of the request's session
func (h *Handlers) managerFor(r *http.Request) *auth.Manager {
	return h.manager.WithStore(storage.Scoped(h.store, sessionScope(sessionID(r.Context()))))
}

// Page is the redirect URI. It redirects to the provider, exchanges a
// returned code, or shows the dashboard, depending on the lifecycle state.
func (h *Handlers) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m := h.managerFor(r)
	query := r.URL.Query()

	result, err := m.Resolve(ctx, auth.ParseCallback(query))
	if err != nil {
		h.writeAuthError(w, err)
		return
	}

	if result.State == auth.StateNoAuth {
		http.Redirect(w, r, result.AuthURL, http.StatusFound)
		return
	}

	client := h.newClient(m.TokenSource(ctx))
	dashboard, err := client.Dashboard(ctx)
	if err != nil {
		h.writeAPIErrorPage(w, err)
		return
	}

	code := query.Get("code")
	data := DashboardPageData{
		DisplayName:   dashboard.Profile.DisplayName,
		Email:         dashboard.Profile.Email,
		AvatarURL:     spotify.FirstImageURL(dashboard.Profile.Images),
		ProfileURL:    dashboard.Profile.ExternalURLs.Spotify,
		PlaylistCount: len(dashboard.Playlists),
		ArtistCount:   len(dashboard.Artists),
		Query:         query.Get("q"),
		PagePath:      h.pagePath,
		Code:          code,
		LogoutPath:    LogoutPath,
	}
	if data.DisplayName == "" {
		data.DisplayName = dashboard.Profile.ID
	}

	for _, a := range dashboard.Artists {
		data.Artists = append(data.Artists, ArtistView{
			Name:     a.Name,
			ImageURL: spotify.FirstImageURL(a.Images),
			URL:      a.ExternalURLs.Spotify,
		})
	}
	for _, p := range dashboard.Playlists {
		data.Playlists = append(data.Playlists, PlaylistView{
			Name:     p.Name,
			ImageURL: spotify.FirstImageURL(p.Images),
			PlayURL:  h.playURL(code, data.Query, p.URI),
		})
	}

	if data.Query != "" {
		tracks, err := client.SearchTracks(ctx, data.Query, 0)
		if err != nil {
			h.writeAPIErrorPage(w, err)
			return
		}
		for _, t := range tracks {
			data.Tracks = append(data.Tracks, TrackView{
				Name:     t.Name,
				Artists:  t.ArtistNames(),
				ImageURL: spotify.FirstImageURL(t.Album.Images),
				PlayURL:  h.playURL(code, data.Query, t.URI),
			})
		}
	}

	if play := query.Get("play"); play != "" {
		if embed, err := client.EmbedURL(play); err == nil {
			data.Player = embed
		} else {
			log.LogDebugWithFields("server", "Ignoring unplayable uri", map[string]any{
				"uri":   play,
				"error": err.Error(),
			})
		}
	}

	token, err := h.csrf.Generate(sessionID(ctx))
	if err != nil {
		jsonwriter.WriteInternalServerError(w, "Failed to generate CSRF token")
		return
	}
	data.CSRFToken = token

	w.Header().Set("Cache-Control", "no-store")
	renderPage(w, http.StatusOK, dashboardPageTemplate, data)
}

func (h *Handlers) playURL(code, q, uri string) string {
	params := url.Values{}
	params.Set("code", code)
	if q != "" {
		params.Set("q", q)
	}
	params.Set("play", uri)
	return h.pagePath + "?" + params.Encode()
}

// Logout clears the session's persisted state and ends the session
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		jsonwriter.WriteBadRequest(w, "Invalid form data")
		return
	}
	if !h.csrf.Validate(r.FormValue("csrf_token"), sessionID(r.Context())) {
		log.LogWarnWithFields("server", "Rejected logout with invalid CSRF token", nil)
		jsonwriter.WriteForbidden(w, "Invalid CSRF token")
		return
	}

	ctx := r.Context()
	if err := h.managerFor(r).Logout(ctx); err != nil {
		log.LogErrorWithFields("server", "Failed to log out", map[string]any{
			"error": err.Error(),
		})
		renderPage(w, http.StatusInternalServerError, messagePageTemplate, MessagePageData{
			Title:       "Logout failed",
			Message:     "The stored token could not be removed.",
			MessageType: "error",
			Detail:      devDetail(err),
		})
		return
	}

	if err := h.store.Remove(ctx, sessionCreatedStorageKey(sessionID(ctx))); err != nil {
		log.LogWarnWithFields("server", "Failed to end session", map[string]any{
			"error": err.Error(),
		})
	}
	cookie.ClearSession(w)

	renderPage(w, http.StatusOK, messagePageTemplate, MessagePageData{
		Title:       "Logged out",
		Message:     "Your Spotify token was removed from this session.",
		MessageType: "success",
		LinkURL:     h.pagePath,
		LinkText:    "Log in again",
	})
}

func (h *Handlers) writeAuthError(w http.ResponseWriter, err error) {
	data := MessagePageData{
		Title:       "Login failed",
		MessageType: "error",
		Detail:      devDetail(err),
		LinkURL:     h.pagePath,
		LinkText:    "Start over",
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrMissingVerifier):
		status = http.StatusBadRequest
		data.Message = "This login link was already used or has expired."
	case errors.Is(err, auth.ErrExchangeFailed):
		status = http.StatusBadGateway
		data.Message = "Spotify did not accept the authorization code."
	default:
		data.Message = "The login state could not be stored."
	}

	log.LogWarnWithFields("server", "Authorization failed", map[string]any{
		"status": status,
		"error":  err.Error(),
	})
	renderPage(w, status, messagePageTemplate, data)
}

func (h *Handlers) writeAPIErrorPage(w http.ResponseWriter, err error) {
	data := MessagePageData{
		Title:       "Spotify request failed",
		Message:     "Spotify could not be reached.",
		MessageType: "error",
		Detail:      devDetail(err),
		LinkURL:     h.pagePath,
		LinkText:    "Log in again",
	}
	status := http.StatusBadGateway
	if isUnauthorized(err) {
		status = http.StatusUnauthorized
		data.Message = "Your session is no longer valid."
	}
	renderPage(w, status, messagePageTemplate, data)
}

// devDetail exposes the error text only in development
func devDetail(err error) string {
	if envutil.IsDev() {
		return err.Error()
	}
	return ""
}

func isUnauthorized(err error) bool {
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return true
	}
	var apiErr *spotify.APIError
	return errors.As(err, &apiErr) && apiErr.Unauthorized()
}

// apiClient returns a client for the session, or writes a 401 when the
// session holds no usable token.
func (h *Handlers) apiClient(w http.ResponseWriter, r *http.Request) (*spotify.Client, bool) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		jsonwriter.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Use GET")
		return nil, false
	}
	m := h.managerFor(r)
	if !m.HasUsableToken(r.Context()) {
		jsonwriter.WriteBearerChallenge(w, h.realm, "Not logged in to Spotify")
		return nil, false
	}
	return h.newClient(m.TokenSource(r.Context())), true
}

func (h *Handlers) writeAPIError(w http.ResponseWriter, err error) {
	if isUnauthorized(err) {
		jsonwriter.WriteBearerChallenge(w, h.realm, "Spotify rejected the token")
		return
	}
	log.LogWarnWithFields("server", "Spotify API call failed", map[string]any{
		"error": err.Error(),
	})
	jsonwriter.WriteBadGateway(w, err.Error())
}

// APIMe returns the session user's profile
func (h *Handlers) APIMe(w http.ResponseWriter, r *http.Request) {
	client, ok := h.apiClient(w, r)
	if !ok {
		return
	}
	user, err := client.Me(r.Context())
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	_ = jsonwriter.Write(w, user)
}

// APIDashboard returns profile, followed artists and playlists
func (h *Handlers) APIDashboard(w http.ResponseWriter, r *http.Request) {
	client, ok := h.apiClient(w, r)
	if !ok {
		return
	}
	dashboard, err := client.Dashboard(r.Context())
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	_ = jsonwriter.Write(w, dashboard)
}

// APISearch searches tracks; an empty q yields an empty list
func (h *Handlers) APISearch(w http.ResponseWriter, r *http.Request) {
	client, ok := h.apiClient(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > spotify.MaxSearchLimit {
			jsonwriter.WriteBadRequest(w, "limit must be between 1 and 50")
			return
		}
		limit = n
	}

	tracks, err := client.SearchTracks(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		h.writeAPIError(w, err)
		return
	}
	if tracks == nil {
		tracks = []spotify.Track{}
	}
	_ = jsonwriter.Write(w, map[string]any{"tracks": tracks})
}

// APIEmbed maps a Spotify URI to its embed player URL
func (h *Handlers) APIEmbed(w http.ResponseWriter, r *http.Request) {
	client, ok := h.apiClient(w, r)
	if !ok {
		return
	}
	uri := r.URL.Query().Get("uri")
	embed, err := client.EmbedURL(uri)
	if err != nil {
		jsonwriter.WriteBadRequest(w, err.Error())
		return
	}
	_ = jsonwriter.Write(w, map[string]string{"uri": uri, "embed_url": embed})
}
