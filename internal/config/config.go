// Package config holds dmscout configuration: persistence path, browser
// settings, dispatch pacing, and logging controls. Configuration is read
// from a YAML file with environment-variable overrides applied on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all dmscout configuration.
type Config struct {
	// Database is the persistence connection string (SQLite path).
	Database string `yaml:"database"`

	Browser  BrowserConfig  `yaml:"browser"`
	Auth     AuthConfig     `yaml:"auth"`
	Scrape   ScrapeConfig   `yaml:"scrape"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// BrowserConfig configures the Chrome instance.
type BrowserConfig struct {
	Bin                 string `yaml:"bin"`
	Headless            bool   `yaml:"headless"`
	ViewportWidth       int    `yaml:"viewport_width"`
	ViewportHeight      int    `yaml:"viewport_height"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
}

// AuthConfig configures the login flow.
type AuthConfig struct {
	// ChallengeTimeout bounds the wait for operator-supplied challenge input.
	ChallengeTimeout string `yaml:"challenge_timeout"`
	// ProbeTimeout bounds the stored-session validity check.
	ProbeTimeout string `yaml:"probe_timeout"`
}

// ScrapeConfig configures the interception run.
type ScrapeConfig struct {
	Scrolls       int    `yaml:"scrolls"`
	ScrollSettle  string `yaml:"scroll_settle"`
	CaptureWindow string `yaml:"capture_window"`
}

// DispatchConfig configures message sending.
type DispatchConfig struct {
	// MinDelay/MaxDelay bound the randomized inter-send delay.
	MinDelay string `yaml:"min_delay"`
	MaxDelay string `yaml:"max_delay"`
	// SendTimeout bounds one conversation's send attempt.
	SendTimeout string `yaml:"send_timeout"`
	// Strategy selects templates: sequential, random, or fixed.
	Strategy string `yaml:"strategy"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Database: defaultDatabasePath(),
		Browser: BrowserConfig{
			Headless:            false,
			ViewportWidth:       1440,
			ViewportHeight:      900,
			NavigationTimeoutMs: 30000,
		},
		Auth: AuthConfig{
			ChallengeTimeout: "5m",
			ProbeTimeout:     "15s",
		},
		Scrape: ScrapeConfig{
			Scrolls:       5,
			ScrollSettle:  "5s",
			CaptureWindow: "2m",
		},
		Dispatch: DispatchConfig{
			MinDelay:    "5s",
			MaxDelay:    "15s",
			SendTimeout: "30s",
			Strategy:    "random",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "dmscout.db"
	}
	return filepath.Join(home, ".dmscout", "dmscout.db")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".dmscout", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if db := os.Getenv("DMSCOUT_DB"); db != "" {
		c.Database = db
	}
	if bin := os.Getenv("DMSCOUT_CHROME_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if v := os.Getenv("DMSCOUT_HEADLESS"); v == "1" || v == "true" {
		c.Browser.Headless = true
	}
	if v := os.Getenv("DMSCOUT_DEBUG"); v == "1" || v == "true" {
		c.Logging.Debug = true
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// NavigationTimeout returns the browser navigation timeout.
func (c *Config) NavigationTimeout() time.Duration {
	if c.Browser.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Browser.NavigationTimeoutMs) * time.Millisecond
}

// ChallengeTimeout returns the operator-input timeout.
func (c *Config) ChallengeTimeout() time.Duration {
	return parseDuration(c.Auth.ChallengeTimeout, 5*time.Minute)
}

// ProbeTimeout returns the stored-session probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return parseDuration(c.Auth.ProbeTimeout, 15*time.Second)
}

// ScrollSettle returns the delay between scroll attempts.
func (c *Config) ScrollSettle() time.Duration {
	return parseDuration(c.Scrape.ScrollSettle, 5*time.Second)
}

// CaptureWindow returns how long the interceptor stays attached after
// navigation completes.
func (c *Config) CaptureWindow() time.Duration {
	return parseDuration(c.Scrape.CaptureWindow, 2*time.Minute)
}

// SendDelayBounds returns the inter-send delay range.
func (c *Config) SendDelayBounds() (time.Duration, time.Duration) {
	min := parseDuration(c.Dispatch.MinDelay, 5*time.Second)
	max := parseDuration(c.Dispatch.MaxDelay, 15*time.Second)
	if max < min {
		max = min
	}
	return min, max
}

// SendTimeout returns the per-conversation send timeout.
func (c *Config) SendTimeout() time.Duration {
	return parseDuration(c.Dispatch.SendTimeout, 30*time.Second)
}
