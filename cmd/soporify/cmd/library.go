package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dgellow/soporify/internal"
	"github.com/dgellow/soporify/internal/spotify"
	"github.com/spf13/cobra"
)

func newMeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show your Spotify profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(app *internal.App) error {
				client, err := app.Client(ctx)
				if err != nil {
					return clientError(err)
				}
				user, err := client.Me(ctx)
				if err != nil {
					return err
				}
				return opts.printer.Result(user, func() {
					opts.printer.Header(displayName(user))
					opts.printer.KeyValue([][]string{
						{"ID", user.ID},
						{"Email", user.Email},
						{"Country", user.Country},
						{"Plan", user.Product},
						{"Followers", strconv.Itoa(user.Followers.Total)},
						{"Profile", user.ExternalURLs.Spotify},
					})
				})
			})
		},
	}
}

func newFollowingCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "following",
		Short: "List the artists you follow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(app *internal.App) error {
				client, err := app.Client(ctx)
				if err != nil {
					return clientError(err)
				}
				artists, err := client.FollowedArtists(ctx)
				if err != nil {
					return err
				}
				return opts.printer.Result(nonNil(artists), func() {
					if len(artists) == 0 {
						opts.printer.Info("You do not follow any artists.")
						return
					}
					rows := make([][]string, 0, len(artists))
					for _, a := range artists {
						rows = append(rows, []string{a.Name, strings.Join(a.Genres, ", "), a.ExternalURLs.Spotify})
					}
					opts.printer.Table([]string{"Artist", "Genres", "Link"}, rows)
				})
			})
		},
	}
}

func newPlaylistsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "playlists",
		Short: "List your playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withApp(ctx, func(app *internal.App) error {
				client, err := app.Client(ctx)
				if err != nil {
					return clientError(err)
				}
				user, err := client.Me(ctx)
				if err != nil {
					return err
				}
				playlists, err := client.UserPlaylists(ctx, user.ID)
				if err != nil {
					return err
				}
				return opts.printer.Result(nonNil(playlists), func() {
					if len(playlists) == 0 {
						opts.printer.Info("No playlists.")
						return
					}
					rows := make([][]string, 0, len(playlists))
					for _, p := range playlists {
						rows = append(rows, []string{p.Name, strconv.Itoa(p.Tracks.Total), p.URI})
					}
					opts.printer.Table([]string{"Playlist", "Tracks", "URI"}, rows)
				})
			})
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>...",
		Short: "Search the catalog for tracks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 || limit > spotify.MaxSearchLimit {
				return fmt.Errorf("--limit must be between 1 and %d", spotify.MaxSearchLimit)
			}
			ctx := cmd.Context()
			return opts.withApp(ctx, func(app *internal.App) error {
				client, err := app.Client(ctx)
				if err != nil {
					return clientError(err)
				}
				tracks, err := client.SearchTracks(ctx, strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				return opts.printer.Result(nonNil(tracks), func() {
					if len(tracks) == 0 {
						opts.printer.Info("No tracks found.")
						return
					}
					rows := make([][]string, 0, len(tracks))
					for _, t := range tracks {
						rows = append(rows, []string{t.Name, t.ArtistNames(), t.Album.Name, t.URI})
					}
					opts.printer.Table([]string{"Track", "Artists", "Album", "URI"}, rows)
				})
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of tracks (1-50)")
	return cmd
}

func newEmbedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "embed <spotify-uri>",
		Short: "Print the embeddable player URL for a Spotify URI",
		Example: `  soporify embed spotify:track:4uLU6hMCjMI75M1A2tKUQC
  soporify embed spotify:playlist:37i9dQZF1DXcBWIGoYBM5M`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			embed, err := spotify.EmbedURL(cfg.Spotify.EmbedBaseURL, args[0])
			if err != nil {
				return err
			}
			result := map[string]string{"uri": args[0], "embed_url": embed}
			return opts.printer.Result(result, func() {
				fmt.Fprintln(opts.printer.Out, embed)
			})
		},
	}
}

func displayName(u *spotify.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

// nonNil keeps empty lists as [] in JSON output
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
