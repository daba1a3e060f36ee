// Package toolserver exposes the Spotify client as MCP tools, so an agent
// can read the profile and search the catalog with the persisted token.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdlog "log"

	"github.com/dgellow/soporify/internal/auth"
	"github.com/dgellow/soporify/internal/log"
	"github.com/dgellow/soporify/internal/spotify"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"
)

const notLoggedIn = "Not logged in to Spotify. Run `soporify login` first."

// Server serves the tools over one MCP server
type Server struct {
	mcpServer *mcpserver.MCPServer
	manager   *auth.Manager
	newClient func(oauth2.TokenSource) *spotify.Client
}

// NewServer registers the tools. newClient builds the API client around the
// manager's token source.
func NewServer(name, version string, manager *auth.Manager, newClient func(oauth2.TokenSource) *spotify.Client) *Server {
	s := &Server{
		manager:   manager,
		newClient: newClient,
	}

	hooks := &mcpserver.Hooks{}
	hooks.AddBeforeCallTool(func(ctx context.Context, id any, message *mcp.CallToolRequest) {
		log.LogDebugWithFields("mcp", "Tool called", map[string]any{
			"tool": message.Params.Name,
		})
	})
	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		log.LogWarnWithFields("mcp", "Request failed", map[string]any{
			"method": string(method),
			"error":  err.Error(),
		})
	})

	s.mcpServer = mcpserver.NewMCPServer(name, version,
		mcpserver.WithHooks(hooks),
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)

	s.mcpServer.AddTool(mcp.NewTool("get_profile",
		mcp.WithDescription("Get the Spotify profile of the logged in user"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.getProfile)

	s.mcpServer.AddTool(mcp.NewTool("list_followed_artists",
		mcp.WithDescription("List the artists the logged in user follows"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.listFollowedArtists)

	s.mcpServer.AddTool(mcp.NewTool("list_playlists",
		mcp.WithDescription("List the logged in user's playlists"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.listPlaylists)

	s.mcpServer.AddTool(mcp.NewTool("search_tracks",
		mcp.WithDescription("Search the Spotify catalog for tracks"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search terms, e.g. an artist or track name"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of tracks to return"),
			mcp.Min(1),
			mcp.Max(spotify.MaxSearchLimit),
		),
	), s.searchTracks)

	s.mcpServer.AddTool(mcp.NewTool("embed_url",
		mcp.WithDescription("Turn a spotify:<kind>:<id> URI into an embeddable player URL"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("uri",
			mcp.Required(),
			mcp.Description("Spotify URI such as spotify:track:4uLU6hMCjMI75M1A2tKUQC"),
		),
	), s.embedURL)

	return s
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio serves JSON-RPC on in and out until ctx is done or in closes
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer, errOut io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(stdlog.New(errOut, "mcp: ", 0))

	log.LogInfoWithFields("mcp", "Serving tools on stdio", nil)
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// client returns an API client, or a tool error result when no usable token
// is stored.
func (s *Server) client(ctx context.Context) (*spotify.Client, *mcp.CallToolResult) {
	if !s.manager.HasUsableToken(ctx) {
		return nil, mcp.NewToolResultError(notLoggedIn)
	}
	return s.newClient(s.manager.TokenSource(ctx)), nil
}

func (s *Server) getProfile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, denied := s.client(ctx)
	if denied != nil {
		return denied, nil
	}
	user, err := client.Me(ctx)
	if err != nil {
		return apiErrorResult(err), nil
	}
	return jsonResult(user)
}

func (s *Server) listFollowedArtists(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, denied := s.client(ctx)
	if denied != nil {
		return denied, nil
	}
	artists, err := client.FollowedArtists(ctx)
	if err != nil {
		return apiErrorResult(err), nil
	}
	return jsonResult(artists)
}

func (s *Server) listPlaylists(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, denied := s.client(ctx)
	if denied != nil {
		return denied, nil
	}
	user, err := client.Me(ctx)
	if err != nil {
		return apiErrorResult(err), nil
	}
	playlists, err := client.UserPlaylists(ctx, user.ID)
	if err != nil {
		return apiErrorResult(err), nil
	}
	return jsonResult(playlists)
}

func (s *Server) searchTracks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := request.GetInt("limit", 0)
	if limit < 0 || limit > spotify.MaxSearchLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", spotify.MaxSearchLimit)), nil
	}

	client, denied := s.client(ctx)
	if denied != nil {
		return denied, nil
	}
	tracks, err := client.SearchTracks(ctx, query, limit)
	if err != nil {
		return apiErrorResult(err), nil
	}
	if tracks == nil {
		tracks = []spotify.Track{}
	}
	return jsonResult(tracks)
}

// embedURL needs no token; the mapping is local
func (s *Server) embedURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := request.RequireString("uri")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	embed, err := s.newClient(nil).EmbedURL(uri)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(embed), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func apiErrorResult(err error) *mcp.CallToolResult {
	var apiErr *spotify.APIError
	if errors.As(err, &apiErr) && apiErr.Unauthorized() {
		return mcp.NewToolResultError("Spotify rejected the stored token. Run `soporify login` again.")
	}
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return mcp.NewToolResultError(notLoggedIn)
	}
	return mcp.NewToolResultError(err.Error())
}
