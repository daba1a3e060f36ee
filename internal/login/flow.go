// Package login runs the authorization flow from a terminal: it serves the
// redirect URI on a loopback listener, sends the user's browser to the
// provider and waits for the callback.
package login

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dgellow/soporify/internal/auth"
	"github.com/dgellow/soporify/internal/config"
	"github.com/dgellow/soporify/internal/log"
	"github.com/pkg/browser"
)

// ErrDenied is returned when the provider redirects back with an error
var ErrDenied = errors.New("authorization denied")

// Flow is a single interactive login
type Flow struct {
	manager      *auth.Manager
	addr         string
	callbackPath string
	listener     net.Listener
	openURL      func(string) error
	out          io.Writer
}

// Option configures a Flow
type Option func(*Flow)

// WithListener serves the callback on an existing listener
func WithListener(l net.Listener) Option {
	return func(f *Flow) {
		f.listener = l
	}
}

// WithBrowser replaces the function that opens the authorization URL
func WithBrowser(open func(string) error) Option {
	return func(f *Flow) {
		f.openURL = open
	}
}

// WithOutput sets where instructions for the user are printed
func WithOutput(w io.Writer) Option {
	return func(f *Flow) {
		f.out = w
	}
}

// NewFlow prepares a login for cfg's redirect URI
func NewFlow(manager *auth.Manager, cfg config.Config, opts ...Option) (*Flow, error) {
	addr, err := cfg.ListenAddr()
	if err != nil {
		return nil, err
	}
	f := &Flow{
		manager:      manager,
		addr:         addr,
		callbackPath: cfg.RedirectPath(),
		openURL:      browser.OpenURL,
		out:          os.Stderr,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Run authorizes and persists a token. It returns when the callback has
// been handled or ctx is done.
func (f *Flow) Run(ctx context.Context, skipBrowser bool) error {
	listener := f.listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", f.addr)
		if err != nil {
			return fmt.Errorf("failed to listen for the callback on %s: %w", f.addr, err)
		}
	}

	done := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc(f.callbackPath, f.handleCallback(ctx, done))

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(done, fmt.Errorf("callback server failed: %w", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.LogWarnWithFields("login", "Failed to shut down callback server", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	authURL, err := f.manager.BeginAuthorization(ctx)
	if err != nil {
		return err
	}

	if skipBrowser {
		fmt.Fprintf(f.out, "Open this URL in your browser to log in:\n\n  %s\n\n", authURL)
	} else if err := f.openURL(authURL); err != nil {
		log.LogWarnWithFields("login", "Failed to open browser", map[string]any{
			"error": err.Error(),
		})
		fmt.Fprintf(f.out, "Could not open a browser. Open this URL to log in:\n\n  %s\n\n", authURL)
	} else {
		fmt.Fprintln(f.out, "Opened your browser to log in. Waiting for the callback...")
	}

	log.LogInfoWithFields("login", "Waiting for callback", map[string]any{
		"addr": listener.Addr().String(),
		"path": f.callbackPath,
	})

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("login cancelled: %w", ctx.Err())
	}
}

func (f *Flow) handleCallback(ctx context.Context, done chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		cb := auth.ParseCallback(r.URL.Query())
		switch {
		case cb.Denied():
			err := fmt.Errorf("%w: %s %s", ErrDenied, cb.Error, cb.ErrorDescription)
			writePage(w, http.StatusBadRequest, failurePage, err.Error())
			report(done, err)
			return
		case !cb.HasCode():
			writePage(w, http.StatusBadRequest, failurePage, "The callback carried no authorization code.")
			return
		}

		token, err := f.manager.ExchangeCode(ctx, cb.Code)
		if err == nil {
			err = f.manager.SaveToken(ctx, token)
		}
		if err != nil {
			writePage(w, http.StatusBadGateway, failurePage, err.Error())
			report(done, err)
			return
		}

		writePage(w, http.StatusOK, successPage, "")
		report(done, nil)
	}
}

// report delivers the first outcome and drops later ones
func report(done chan<- error, err error) {
	select {
	case done <- err:
	default:
	}
}
