// Package spotify is a small Web API client for the calls the dashboard,
// the CLI and the tool server make on behalf of an authorized user.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dgellow/soporify/internal/config"
	"github.com/dgellow/soporify/internal/ioutil"
	"github.com/dgellow/soporify/internal/log"
	"github.com/dgellow/soporify/internal/urlutil"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

const (
	// maxPages bounds how many pages a listing follows
	maxPages = 20

	// MaxSearchLimit is the largest page the search endpoint accepts
	MaxSearchLimit = 50

	defaultSearchLimit = 20
)

// Client calls the Web API with the bearer token of a TokenSource. When the
// source has no usable token the request is never sent.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	embedBaseURL string
}

// Option configures a Client
type Option func(*clientOptions)

type clientOptions struct {
	base         *http.Client
	baseURL      string
	embedBaseURL string
}

// WithHTTPClient sets the client whose transport carries the requests
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.base = c
	}
}

// WithBaseURL overrides the API root
func WithBaseURL(u string) Option {
	return func(o *clientOptions) {
		o.baseURL = u
	}
}

// WithEmbedBaseURL overrides the embed player root
func WithEmbedBaseURL(u string) Option {
	return func(o *clientOptions) {
		o.embedBaseURL = u
	}
}

// NewClient creates a client authorized by ts
func NewClient(ts oauth2.TokenSource, opts ...Option) *Client {
	o := clientOptions{
		base:         &http.Client{Timeout: 30 * time.Second},
		baseURL:      config.DefaultAPIBaseURL,
		embedBaseURL: config.DefaultEmbedBaseURL,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		httpClient: &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: o.base.Transport},
			Timeout:   o.base.Timeout,
		},
		baseURL:      strings.TrimRight(o.baseURL, "/"),
		embedBaseURL: strings.TrimRight(o.embedBaseURL, "/"),
	}
}

// Me fetches the current user's profile
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, c.baseURL+"/me", &user); err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &user, nil
}

// FollowedArtists lists the artists the current user follows
func (c *Client) FollowedArtists(ctx context.Context) ([]Artist, error) {
	var artists []Artist
	next := c.baseURL + "/me/following?type=artist&limit=50"
	for pages := 0; next != "" && pages < maxPages; pages++ {
		var resp struct {
			Artists page[Artist] `json:"artists"`
		}
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("failed to get followed artists: %w", err)
		}
		artists = append(artists, resp.Artists.Items...)
		next = c.sameOrigin(resp.Artists.Next)
	}
	return artists, nil
}

// UserPlaylists lists the public playlists of userID
func (c *Client) UserPlaylists(ctx context.Context, userID string) ([]Playlist, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	var playlists []Playlist
	next := c.baseURL + "/users/" + url.PathEscape(userID) + "/playlists?limit=50"
	for pages := 0; next != "" && pages < maxPages; pages++ {
		var resp page[Playlist]
		if err := c.get(ctx, next, &resp); err != nil {
			return nil, fmt.Errorf("failed to get playlists: %w", err)
		}
		playlists = append(playlists, resp.Items...)
		next = c.sameOrigin(resp.Next)
	}
	return playlists, nil
}

// SearchTracks searches the catalog for tracks. An empty query returns no
// results without calling the API.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, MaxSearchLimit)

	params := url.Values{}
	params.Set("q", query)
	params.Set("type", "track")
	params.Set("limit", strconv.Itoa(limit))

	var resp struct {
		Tracks page[Track] `json:"tracks"`
	}
	if err := c.get(ctx, c.baseURL+"/search?"+params.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	return resp.Tracks.Items, nil
}

// Dashboard fetches the profile, then the followed artists and the
// profile's playlists concurrently.
func (c *Client) Dashboard(ctx context.Context) (*Dashboard, error) {
	profile, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Profile: profile}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		artists, err := c.FollowedArtists(gctx)
		d.Artists = artists
		return err
	})
	g.Go(func() error {
		playlists, err := c.UserPlaylists(gctx, profile.ID)
		d.Playlists = playlists
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.LogDebugWithFields("spotify", "Fetched dashboard", map[string]any{
		"artists":   len(d.Artists),
		"playlists": len(d.Playlists),
	})
	return d, nil
}

// EmbedURL maps a spotify:<kind>:<id> URI to its embed player URL
func (c *Client) EmbedURL(uri string) (string, error) {
	return EmbedURL(c.embedBaseURL, uri)
}

func (c *Client) get(ctx context.Context, target string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	log.LogTraceWithFields("spotify", "API response", map[string]any{
		"path":   req.URL.Path,
		"status": resp.StatusCode,
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, ioutil.ReadLimited(resp.Body, 4096))
	}
	return ioutil.DecodeJSON(resp.Body, ioutil.MaxResponseBody, v)
}

// sameOrigin returns next if it points at the API root; paging links
// elsewhere are not followed with the user's token.
func (c *Client) sameOrigin(next string) string {
	if next == "" || !urlutil.WithinBase(c.baseURL, next) {
		return ""
	}
	return next
}
