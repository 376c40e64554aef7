package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/alexlifshitz/teslanav/internal/fleet"
)

// runAuth walks the Tesla authorization code flow. It prints the grant
// URL (and a terminal QR code for scanning from a phone), runs a local
// callback server on the configured redirect URI, and persists the
// resulting token pair.
func runAuth(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.Tesla.ClientID == "" || cfg.Tesla.RedirectURI == "" {
		return errors.New("auth requires tesla.client_id and tesla.redirect_uri in config")
	}

	oauth := fleet.OAuthConfig{
		ClientID:     cfg.Tesla.ClientID,
		ClientSecret: cfg.Tesla.ClientSecret,
		RedirectURI:  cfg.Tesla.RedirectURI,
	}

	state, err := randomState()
	if err != nil {
		return fmt.Errorf("generate state: %w", err)
	}

	authURL := oauth.AuthorizeURL(state)

	fmt.Fprintln(stdout, "Open this URL in a browser to link your Tesla account:")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "  "+authURL)
	fmt.Fprintln(stdout)
	if qr, err := qrcode.New(authURL, qrcode.Medium); err == nil {
		fmt.Fprintln(stdout, qr.ToSmallString(false))
	}

	code, err := waitForCallback(ctx, cfg.Tesla.RedirectURI, state)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "Authorization received, exchanging code...")

	tokens, err := oauth.ExchangeCode(ctx, code)
	if err != nil {
		return err
	}

	if cfg.Tesla.TokenFile != "" {
		ts := fleet.NewTokenSource(fleet.Tokens{}, cfg.Tesla.TokenFile, nil)
		ts.Update(tokens)
		fmt.Fprintf(stdout, "Tokens saved to %s\n", cfg.Tesla.TokenFile)
		return nil
	}

	fmt.Fprintln(stdout, "No tesla.token_file configured; add these to your config:")
	fmt.Fprintf(stdout, "  access_token: %s\n", tokens.AccessToken)
	fmt.Fprintf(stdout, "  refresh_token: %s\n", tokens.RefreshToken)
	return nil
}

// waitForCallback serves the redirect URI until Tesla redirects the
// browser back with an authorization code. The state parameter must
// match what we sent; a mismatch aborts the flow.
func waitForCallback(ctx context.Context, redirectURI, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("parse redirect_uri: %w", err)
	}
	if u.Scheme != "http" {
		return "", fmt.Errorf("redirect_uri must be a local http URL, got %s", redirectURI)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	type result struct {
		code string
		err  error
	}
	resultCh := make(chan result, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			resultCh <- result{err: errors.New("callback state mismatch")}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			resultCh <- result{err: errors.New("callback missing code")}
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintln(w, "<html><body><h2>Account linked.</h2><p>You can close this tab and return to the terminal.</p></body></html>")
		resultCh <- result{code: code}
	})

	server := &http.Server{
		Addr:        u.Host,
		Handler:     mux,
		ReadTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	select {
	case r := <-resultCh:
		return r.code, r.err
	case err := <-errCh:
		return "", fmt.Errorf("callback server: %w", err)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
