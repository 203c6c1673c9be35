// Package config loads vibestream configuration from defaults, an optional
// YAML file, and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ErrMissingCredentials is returned when SPOTIFY_ID or SPOTIFY_SECRET is not set.
var ErrMissingCredentials = errors.New("missing SPOTIFY_ID or SPOTIFY_SECRET environment variable")

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Generation modes.
const (
	ModeAtomic     = "atomic"
	ModeBestEffort = "best_effort"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config is the complete application configuration.
type Config struct {
	Spotify    SpotifyConfig    `koanf:"spotify"`
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Generation GenerationConfig `koanf:"generation"`
	API        APIConfig        `koanf:"api"`
	Log        LogConfig        `koanf:"log"`
}

// SpotifyConfig holds OAuth client settings.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RedirectURL  string `koanf:"redirect_url" validate:"required,url"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"gte=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
}

// StorageConfig selects and tunes the Store implementation.
type StorageConfig struct {
	Driver      string        `koanf:"driver" validate:"oneof=postgres memory"`
	DatabaseURL string        `koanf:"database_url" validate:"required_if=Driver postgres"`
	CallTimeout time.Duration `koanf:"call_timeout" validate:"gt=0"`
	MaxRetries  int           `koanf:"max_retries" validate:"gte=0,lte=10"`
}

// GenerationConfig controls playlist generation.
type GenerationConfig struct {
	Mode string `koanf:"mode" validate:"oneof=atomic best_effort"`
}

// APIConfig holds request limits.
type APIConfig struct {
	MaxLimit int `koanf:"max_limit" validate:"gt=0"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled off"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

func defaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL: "http://127.0.0.1:8080/callback",
		},
		Server: ServerConfig{
			Addr:              "127.0.0.1:8080",
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Storage: StorageConfig{
			Driver:      DriverPostgres,
			CallTimeout: 5 * time.Second,
			MaxRetries:  2,
		},
		Generation: GenerationConfig{Mode: ModeAtomic},
		API:        APIConfig{MaxLimit: 100},
		Log:        LogConfig{Level: "info", Format: "json"},
	}
}

var validate = validator.New()

// Load builds the configuration and validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// RequireSpotify returns ErrMissingCredentials unless both OAuth client
// values are set. Only the web server needs them.
func (c *Config) RequireSpotify() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}

// BestEffort reports whether generation runs without a transaction.
func (c *Config) BestEffort() bool {
	return c.Generation.Mode == ModeBestEffort
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{"server.cors_origins"}

// processSliceFields splits comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := []string{}
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("setting %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	"spotify_id":          "spotify.client_id",
	"spotify_secret":      "spotify.client_secret",
	"redirect_url":        "spotify.redirect_url",
	"http_addr":           "server.addr",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"storage_driver":      "storage.driver",
	"database_url":        "storage.database_url",
	"store_call_timeout":  "storage.call_timeout",
	"store_max_retries":   "storage.max_retries",
	"generation_mode":     "generation.mode",
	"recommend_max_limit": "api.max_limit",
	"log_level":           "log.level",
	"log_format":          "log.format",
}

// envTransformFunc maps known environment variables to config paths and
// drops everything else.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
