// Package config handles process configuration loading and validation.
//
// Values are applied in order: defaults, then the optional YAML file, then
// TETHER_* environment variables. The result is validated last.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Location sources.
const (
	LocationGeoClue = "geoclue"
	LocationStatic  = "static"
	LocationNone    = "none"
)

// Config holds all process configuration.
type Config struct {
	// Adapter is the BlueZ adapter name.
	Adapter string `envconfig:"TETHER_ADAPTER" yaml:"adapter"`

	// Peripheral overrides the paired device address from the settings file.
	Peripheral string `envconfig:"TETHER_PERIPHERAL" yaml:"peripheral"`

	// SettingsPath is the user settings file.
	SettingsPath string `envconfig:"TETHER_SETTINGS" yaml:"settings_path"`

	Transport TransportConfig `yaml:"transport"`
	Location  LocationConfig  `yaml:"location"`
	Feed      FeedConfig      `yaml:"feed"`
	Trace     TraceConfig     `yaml:"trace"`
	Log       LogConfig       `yaml:"log"`
}

// TransportConfig bounds radio operations.
type TransportConfig struct {
	ProbeTimeout   time.Duration `envconfig:"TETHER_PROBE_TIMEOUT" yaml:"probe_timeout"`
	ConnectTimeout time.Duration `envconfig:"TETHER_CONNECT_TIMEOUT" yaml:"connect_timeout"`
}

// LocationConfig selects the location provider.
type LocationConfig struct {
	Source    string        `envconfig:"TETHER_LOCATION_SOURCE" yaml:"source"`
	Timeout   time.Duration `envconfig:"TETHER_LOCATION_TIMEOUT" yaml:"timeout"`
	DesktopID string        `envconfig:"TETHER_GEOCLUE_DESKTOP_ID" yaml:"desktop_id"`

	// Latitude and Longitude are used by the static source.
	Latitude  float64 `envconfig:"TETHER_LATITUDE" yaml:"latitude"`
	Longitude float64 `envconfig:"TETHER_LONGITUDE" yaml:"longitude"`
}

// FeedConfig controls the websocket event feed. Empty Addr disables it.
type FeedConfig struct {
	Addr string `envconfig:"TETHER_FEED_ADDR" yaml:"addr"`
	Path string `envconfig:"TETHER_FEED_PATH" yaml:"path"`
}

// TraceConfig controls the structured event trace.
type TraceConfig struct {
	// File is the CBOR trace file. Empty disables file tracing.
	File string `envconfig:"TETHER_TRACE_FILE" yaml:"file"`

	// Console mirrors trace events to the operational log at debug level.
	Console bool `envconfig:"TETHER_TRACE_CONSOLE" yaml:"console"`
}

// LogConfig holds operational logging settings.
type LogConfig struct {
	Level  string `envconfig:"TETHER_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"TETHER_LOG_FORMAT" yaml:"format"`
}

// Load loads configuration from defaults, an optional file and the environment.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Adapter:      "hci0",
		SettingsPath: defaultSettingsPath(),
		Transport: TransportConfig{
			ProbeTimeout:   5 * time.Second,
			ConnectTimeout: 20 * time.Second,
		},
		Location: LocationConfig{
			Source:    LocationGeoClue,
			Timeout:   10 * time.Second,
			DesktopID: "tether",
		},
		Feed: FeedConfig{
			Path: "/events",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func defaultSettingsPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/tether/settings.json"
	}
	return "tether-settings.json"
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Adapter == "" {
		errs = append(errs, "adapter is required")
	}
	if c.SettingsPath == "" {
		errs = append(errs, "settings_path is required")
	}
	if c.Transport.ProbeTimeout < 0 || c.Transport.ConnectTimeout < 0 {
		errs = append(errs, "transport timeouts must be non-negative")
	}

	switch c.Location.Source {
	case LocationGeoClue, LocationNone:
	case LocationStatic:
		if c.Location.Latitude < -90 || c.Location.Latitude > 90 {
			errs = append(errs, "location.latitude must be within [-90, 90]")
		}
		if c.Location.Longitude < -180 || c.Location.Longitude > 180 {
			errs = append(errs, "location.longitude must be within [-180, 180]")
		}
	default:
		errs = append(errs, fmt.Sprintf("location.source must be one of geoclue, static, none; got %q", c.Location.Source))
	}
	if c.Location.Timeout <= 0 {
		errs = append(errs, "location.timeout must be positive")
	}

	if c.Feed.Addr != "" && !strings.HasPrefix(c.Feed.Path, "/") {
		errs = append(errs, "feed.path must start with /")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be text or json; got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error; got %q", s)
	}
}
