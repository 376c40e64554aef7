package fleet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Tokens is a Tesla access/refresh token pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenSource holds the current token pair and persists rotations to
// an optional file. Reads and writes may race between concurrent
// vehicle commands; the last writer wins, which is safe because any
// refreshed pair the upstream hands back supersedes the one it was
// minted from.
type TokenSource struct {
	mu     sync.Mutex
	tokens Tokens
	path   string
	logger *slog.Logger
}

// NewTokenSource seeds the source from the configured pair, preferring
// a persisted pair on disk when path names an existing file.
func NewTokenSource(initial Tokens, path string, logger *slog.Logger) *TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	ts := &TokenSource{tokens: initial, path: path, logger: logger}
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			var saved Tokens
			if err := json.Unmarshal(data, &saved); err == nil && saved.AccessToken != "" {
				ts.tokens = saved
				logger.Debug("loaded persisted tokens", "path", path)
			}
		}
	}
	return ts
}

// Current returns the token pair to use for the next request.
func (ts *TokenSource) Current() Tokens {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.tokens
}

// Update replaces the stored pair and persists it. Empty fields in the
// new pair keep their previous values, so a rotation that only renews
// the access token does not drop the refresh token.
func (ts *TokenSource) Update(t Tokens) {
	ts.mu.Lock()
	if t.AccessToken != "" {
		ts.tokens.AccessToken = t.AccessToken
	}
	if t.RefreshToken != "" {
		ts.tokens.RefreshToken = t.RefreshToken
	}
	current := ts.tokens
	path := ts.path
	ts.mu.Unlock()

	if path == "" {
		return
	}
	if err := persistTokens(path, current); err != nil {
		ts.logger.Warn("persisting tokens", "path", path, "error", err)
	}
}

func persistTokens(path string, t Tokens) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating token dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
