// Package config holds the YAML-backed application configuration. Load
// creates a default config file on first run; Save writes atomically with
// 0600 permissions.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OverlayConfig describes one external ICS subscription whose events are
// shown on the calendar alongside the moon phase markers.
type OverlayConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as the canonical display zone.
	// Phase fractions are computed from wall-clock components in this zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls the first weekday of the calendar grid:
	// "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule (e.g. "0 * * * *") driving the
	// periodic render/capture/display cycle.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// MonthsAhead is how many months of phase events the ICS feed exports.
	MonthsAhead int `yaml:"months_ahead" json:"months_ahead"`

	// HighlightFull inks full-moon days in red on the tri-color panel.
	HighlightFull bool `yaml:"highlight_full" json:"highlight_full"`

	// Overlays is the list of subscribed external ICS sources.
	Overlays []OverlayConfig `yaml:"overlays" json:"overlays"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8080",
		Timezone:      "UTC",
		WeekStart:     "monday",
		RefreshCron:   "0 * * * *",
		MonthsAhead:   3,
		HighlightFull: true,
		Overlays:      []OverlayConfig{},
		BasicAuth:     nil,
	}
}

// Normalize fills in missing/zero values so partially-filled configs from
// older versions still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "0 * * * *"
	}
	if c.MonthsAhead <= 0 {
		c.MonthsAhead = 3
	}
	if c.Overlays == nil {
		c.Overlays = []OverlayConfig{}
	}
}

// Load loads configuration from the given YAML path. If the file does not
// exist, a default config is written there first (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg alongside the error so the caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".mooncal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save, which reads nicer at call
// sites that already hold a *Config.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
