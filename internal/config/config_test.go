package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
listen:
  port: 9999
llm:
  api_key: sk-test
  model: gpt-4o
backend:
  url: http://localhost:8000
tesla:
  access_token: tok
log_level: debug
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Listen.Port)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("expected api key sk-test, got %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", cfg.LLM.Model)
	}
	if cfg.Tesla.AccessToken != "tok" {
		t.Errorf("expected access token tok, got %q", cfg.Tesla.AccessToken)
	}
	// Defaults survive partial files.
	if cfg.CalDAV.LookaheadHours != 36 {
		t.Errorf("expected default lookahead 36, got %d", cfg.CalDAV.LookaheadHours)
	}
	if cfg.CardDAV.MaxContacts != 12 {
		t.Errorf("expected default max contacts 12, got %d", cfg.CardDAV.MaxContacts)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TESLANAV_TEST_KEY", "secret-from-env")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "llm:\n  api_key: ${TESLANAV_TEST_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.APIKey != "secret-from-env" {
		t.Errorf("expected env expansion, got %q", cfg.LLM.APIKey)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"trace", LevelTrace, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
