package cmd

import (
	"github.com/dgellow/soporify/internal"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Host the redirect URI page",
		Long: `Serves the page Spotify redirects back to. Visiting it starts the login,
exchanges the returned code and shows your profile, followed artists and
playlists. Each browser gets its own session and token. Sessions are kept
in memory unless storage.kind is set, and expired ones are swept.

The server listens on server.addr, or on the host and port of the redirect
URI, and stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return opts.withServerApp(ctx, func(app *internal.App) error {
				return app.Serve(ctx)
			})
		},
	}
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve your library as MCP tools on stdio",
		Long: `Runs a Model Context Protocol server on stdin and stdout exposing
get_profile, list_followed_artists, list_playlists, search_tracks and
embed_url. The tools use the token stored by 'soporify login'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return opts.withApp(ctx, func(app *internal.App) error {
				return app.ServeMCP(ctx, opts.stdin, opts.printer.Out, opts.printer.Err)
			})
		},
	}
}
