package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgellow/soporify/cmd/soporify/internal/output"
	"github.com/dgellow/soporify/internal"
	"github.com/dgellow/soporify/internal/login"
	"github.com/spf13/cobra"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to Spotify through your browser",
		Long: `Opens the Spotify consent page and listens on the redirect URI for the
authorization code, then exchanges it for an access token using PKCE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return opts.withApp(ctx, func(app *internal.App) error {
				err := app.Login(ctx, noBrowser, login.WithOutput(opts.printer.Err))
				if errors.Is(err, login.ErrDenied) {
					return fmt.Errorf("Spotify login was not approved: %w", err)
				}
				if err != nil {
					return err
				}

				st := app.Manager().Status(ctx)
				opts.printer.Success(fmt.Sprintf("Logged in. Token valid until %s", st.ExpiresAt.Local().Format(time.DateTime)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL instead of opening a browser")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored token and any pending login",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(app *internal.App) error {
				if err := app.Manager().Logout(cmd.Context()); err != nil {
					return err
				}
				opts.printer.Success("Logged out")
				return nil
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a usable token is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), func(app *internal.App) error {
				st := app.Manager().Status(cmd.Context())
				return opts.printer.Result(st, func() {
					token := "missing"
					switch {
					case st.Usable:
						token = "valid"
					case st.HasToken:
						token = "expired"
					}
					pending := "no"
					if st.HasVerifier {
						pending = "yes"
					}
					expires := "-"
					if !st.ExpiresAt.IsZero() {
						expires = st.ExpiresAt.Local().Format(time.DateTime)
					}

					opts.printer.KeyValue([][]string{
						{"Token", output.FormatState(token)},
						{"Expires", expires},
						{"Login pending", pending},
					})
				})
			})
		},
	}
}
