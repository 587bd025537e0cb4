package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // timezone names must resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

const (
	// APIKeyEnv overrides APIConfig.Key when set, so the key can stay out of
	// the config file.
	APIKeyEnv = "WHATSON_API_KEY"

	defaultListen    = "127.0.0.1:8080"
	defaultTimezone  = "Europe/London"
	defaultRefresh   = "*/15 * * * *"
	defaultEndpoint  = "https://whatson.motorpointarenanottingham.com/api/challenge"
	defaultCDNBase   = "https://d2gloyfobyb8yo.cloudfront.net/dbimages"
	defaultTimeout   = 15 * time.Second
	defaultRate      = 30
	defaultCacheKey  = "events_cache"
	defaultCacheTTL  = time.Hour
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// APIConfig describes the remote listings API.
type APIConfig struct {
	// Endpoint is the GET URL returning the event records.
	Endpoint string `yaml:"endpoint" json:"endpoint" validate:"required,url"`
	// Key is sent as the X-API-Key header.
	Key string `yaml:"key" json:"-"`
	// CDNBase is prefixed to image file names.
	CDNBase string `yaml:"cdn_base" json:"cdn_base" validate:"required,url"`
	// Timeout bounds a single request.
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	// RatePerMinute caps outbound requests; 0 disables the limiter.
	RatePerMinute int `yaml:"rate_per_minute" json:"rate_per_minute" validate:"gte=0"`
}

// CacheConfig describes where and how long the event list is cached.
type CacheConfig struct {
	// Path is the Badger directory. Empty keeps the cache in memory only.
	Path string `yaml:"path" json:"path"`
	// Key is the fixed key the event list is stored under.
	Key string `yaml:"key" json:"key" validate:"required"`
	// TTL is how long a cached list is served without refetching.
	TTL time.Duration `yaml:"ttl" json:"ttl" validate:"gt=0"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the local API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" validate:"required_with=Password"`
	Password string `yaml:"password" json:"password" validate:"required_with=Username"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen" validate:"required,hostname_port"`

	// Timezone is the IANA timezone used for month boundaries and display
	// labels (e.g. "Europe/London").
	Timezone string `yaml:"timezone" json:"timezone" validate:"required,timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used to warm the event cache in the background.
	RefreshCron string `yaml:"refresh" json:"refresh" validate:"required,cronspec"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level" validate:"oneof=debug info error"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format" json:"log_format" validate:"oneof=text json"`

	// AllowedOrigins enables CORS on /api for the listed origins. Empty
	// disables CORS handling.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`

	API   APIConfig   `yaml:"api" json:"api"`
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		RefreshCron: defaultRefresh,
		LogLevel:    defaultLogLevel,
		LogFormat:   defaultLogFormat,
		API: APIConfig{
			Endpoint:      defaultEndpoint,
			CDNBase:       defaultCDNBase,
			Timeout:       defaultTimeout,
			RatePerMinute: defaultRate,
		},
		Cache: CacheConfig{
			Key: defaultCacheKey,
			TTL: defaultCacheTTL,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch c.LogLevel {
	case "debug", "info", "error":
		// ok
	default:
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat != "json" {
		c.LogFormat = defaultLogFormat
	}

	if c.API.Endpoint == "" {
		c.API.Endpoint = defaultEndpoint
	}
	if c.API.CDNBase == "" {
		c.API.CDNBase = defaultCDNBase
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = defaultTimeout
	}
	if c.API.RatePerMinute < 0 {
		c.API.RatePerMinute = 0
	}

	if c.Cache.Key == "" {
		c.Cache.Key = defaultCacheKey
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = defaultCacheTTL
	}
}

// ApplyEnv overlays environment overrides.
func (c *Config) ApplyEnv() {
	if key := os.Getenv(APIKeyEnv); key != "" {
		c.API.Key = key
	}
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied after either branch.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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

	tmp, err := os.CreateTemp(dir, ".whatson-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
