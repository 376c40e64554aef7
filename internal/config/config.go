// Package config handles teslanav configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/teslanav/config.yaml, /etc/teslanav/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "teslanav", "config.yaml"))
	}

	paths = append(paths, "/etc/teslanav/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all teslanav configuration.
type Config struct {
	Listen   ListenConfig   `yaml:"listen"`
	LLM      LLMConfig      `yaml:"llm"`
	Backend  BackendConfig  `yaml:"backend"`
	Tesla    TeslaConfig    `yaml:"tesla"`
	Places   PlacesConfig   `yaml:"places"`
	CardDAV  DAVConfig      `yaml:"carddav"`
	CalDAV   CalDAVConfig   `yaml:"caldav"`
	Weather  WeatherConfig  `yaml:"weather"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	LogLevel string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// LLMConfig defines the language-model endpoint used to interpret
// free-form itineraries.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // default https://api.openai.com
	Model   string `yaml:"model"`
}

// BackendConfig defines the route resolution service.
type BackendConfig struct {
	URL string `yaml:"url"`
	// GoogleMapsKey, when set, is forwarded to the backend via the
	// X-Google-Maps-Key header instead of the backend's own key.
	GoogleMapsKey string `yaml:"google_maps_key"`
}

// TeslaConfig defines Fleet API proxy access and OAuth settings.
type TeslaConfig struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	// TokenFile, when set, persists refreshed credentials across restarts.
	TokenFile    string `yaml:"token_file"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// PlacesConfig defines the saved-places store.
type PlacesConfig struct {
	DBPath string `yaml:"db_path"`
}

// DAVConfig defines a CardDAV endpoint for contact addresses.
type DAVConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// MaxContacts bounds how many contact addresses are offered to the
	// interpreter as context. Default 12.
	MaxContacts int `yaml:"max_contacts"`
}

// CalDAVConfig defines a CalDAV endpoint for upcoming calendar events.
type CalDAVConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// LookaheadHours bounds how far into the future events are fetched.
	// Default 36.
	LookaheadHours int `yaml:"lookahead_hours"`
	// MaxEvents bounds how many events are offered as context. Default 5.
	MaxEvents int `yaml:"max_events"`
}

// WeatherConfig controls the Open-Meteo fallback for climate targets.
type WeatherConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MQTTConfig defines the optional event publisher.
type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Broker     string `yaml:"broker"` // e.g. mqtt://host:1883 or mqtts://host:8883
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DeviceName string `yaml:"device_name"` // topic segment, default "teslanav"
}

// Configured reports whether the CardDAV endpoint is usable.
func (d DAVConfig) Configured() bool { return d.URL != "" }

// Configured reports whether the CalDAV endpoint is usable.
func (d CalDAVConfig) Configured() bool { return d.URL != "" }

// Load reads configuration from a YAML file. A .env file next to the
// working directory is loaded first so that ${VAR} references in the
// YAML can point at secrets kept out of the config file.
func Load(path string) (*Config, error) {
	// Missing .env is fine; it only exists in dev setups.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8090},
		LLM: LLMConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o-mini",
		},
		Backend: BackendConfig{URL: "http://localhost:8000"},
		Places:  PlacesConfig{DBPath: "places.db"},
		CardDAV: DAVConfig{MaxContacts: 12},
		CalDAV:  CalDAVConfig{LookaheadHours: 36, MaxEvents: 5},
		MQTT:    MQTTConfig{DeviceName: "teslanav"},
	}
}
