// Package cmd implements the soporify command line
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgellow/soporify/cmd/soporify/internal/output"
	"github.com/dgellow/soporify/internal"
	"github.com/dgellow/soporify/internal/auth"
	"github.com/dgellow/soporify/internal/config"
	"github.com/dgellow/soporify/internal/log"
	"github.com/spf13/cobra"
)

// ConfigEnvVar names the config file when --config is not given
const ConfigEnvVar = "SOPORIFY_CONFIG"

var titleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("42"))

var errNotLoggedIn = errors.New("not logged in to Spotify: run `soporify login`")

// rootOptions are the persistent flags plus the streams every command
// writes to.
type rootOptions struct {
	configPath string
	format     string
	logLevel   string
	version    string

	stdin   io.Reader
	printer *output.Printer
}

// Execute runs the command line with the process streams
func Execute(version string) error {
	root := NewRootCmd(version, os.Stdin, os.Stdout, os.Stderr)
	if err := root.Execute(); err != nil {
		// cobra's own reporting is silenced
		p := &output.Printer{Out: os.Stdout, Err: os.Stderr}
		p.Error(err.Error())
		return err
	}
	return nil
}

// NewRootCmd builds the command tree
func NewRootCmd(version string, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{
		version: version,
		stdin:   stdin,
		printer: &output.Printer{Out: stdout, Err: stderr},
	}

	root := &cobra.Command{
		Use:   "soporify",
		Short: "Log in to Spotify with PKCE and browse your library",
		Long: titleStyle.Render("soporify") + `

Authorizes against the Spotify Web API with the Authorization Code flow and
PKCE, keeps the access token in a local store, and uses it to read your
profile, followed artists and playlists.

Get started:
  soporify login          Log in through your browser
  soporify me             Show your profile
  soporify serve          Host the redirect URI page
  soporify mcp            Serve the library as MCP tools on stdio`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetOutput(stderr)
			if opts.logLevel != "" {
				if err := log.SetLogLevel(opts.logLevel); err != nil {
					return err
				}
			}
			if !output.ValidFormat(opts.format) {
				return fmt.Errorf("unsupported format %q: use table or json", opts.format)
			}
			opts.printer.Format = opts.format
			return nil
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $"+ConfigEnvVar+" or ~/.soporify/config.json)")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", output.FormatTable, "output format: table, json")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: error, warn, info, debug, trace")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
		newMeCmd(opts),
		newFollowingCmd(opts),
		newPlaylistsCmd(opts),
		newSearchCmd(opts),
		newEmbedCmd(opts),
		newServeCmd(opts),
		newMCPCmd(opts),
		newConfigCmd(opts),
	)

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\nRun '%s --help' for usage", err, cmd.CommandPath())
	})

	return root
}

// loadConfig reads --config, then $SOPORIFY_CONFIG, then the default path.
// Without any file the built-in defaults apply.
func (o *rootOptions) loadConfig() (config.Config, error) {
	path := o.configPath
	if path == "" {
		path = os.Getenv(ConfigEnvVar)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			candidate := filepath.Join(home, ".soporify", "config.json")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path == "" {
		log.LogDebugWithFields("cli", "No config file, using defaults", nil)
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	log.LogDebugWithFields("cli", "Loaded config", map[string]any{
		"path": path,
	})
	return cfg, nil
}

// newApp loads the config and opens the store. Callers close the app.
func (o *rootOptions) newApp(ctx context.Context, defaultStorage config.StorageKind) (*internal.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Storage.Kind = cfg.Storage.Kind.Or(defaultStorage)
	return internal.NewApp(ctx, cfg, o.version)
}

// withApp runs fn with an open app and closes it afterwards. The token is
// kept in the state file unless storage.kind says otherwise.
func (o *rootOptions) withApp(ctx context.Context, fn func(*internal.App) error) error {
	return o.withAppStorage(ctx, config.StorageKindFile, fn)
}

// withServerApp is withApp for the web host, whose sessions live in memory
// unless storage.kind says otherwise
func (o *rootOptions) withServerApp(ctx context.Context, fn func(*internal.App) error) error {
	return o.withAppStorage(ctx, config.StorageKindMemory, fn)
}

func (o *rootOptions) withAppStorage(ctx context.Context, defaultStorage config.StorageKind, fn func(*internal.App) error) error {
	app, err := o.newApp(ctx, defaultStorage)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.LogWarnWithFields("cli", "Failed to close store", map[string]any{
				"error": err.Error(),
			})
		}
	}()
	return fn(app)
}

// clientError turns a missing token into the login hint
func clientError(err error) error {
	if errors.Is(err, auth.ErrNotAuthenticated) {
		return errNotLoggedIn
	}
	return err
}
