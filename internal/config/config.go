// Package config holds the typed configuration for the bridge. Sections are
// plain structs with defaults; Load fills them from a config file and
// WABRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Server holds HTTP API configuration.
type Server struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	LogLevel       string        `mapstructure:"log_level"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Session holds session lifecycle configuration.
type Session struct {
	// StorageRoot is the directory holding one subdirectory per session.
	StorageRoot string `mapstructure:"storage_root"`
	// Headless and LaunchArgs are passed through to the chat client.
	Headless   bool     `mapstructure:"headless"`
	LaunchArgs []string `mapstructure:"launch_args"`
	// MaxQRRetries is how many QR codes are issued before authentication
	// is failed.
	MaxQRRetries int `mapstructure:"max_qr_retries"`
	// AuthTimeout is the single-shot timeout armed on every QR code.
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`
}

// Editor holds editor extension client configuration.
type Editor struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// Cache holds result cache configuration.
type Cache struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// Health holds health monitoring configuration.
type Health struct {
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	StaleSessionAge time.Duration `mapstructure:"stale_session_age"`
}

// Config is the root configuration.
type Config struct {
	Server  Server  `mapstructure:"server"`
	Session Session `mapstructure:"session"`
	Editor  Editor  `mapstructure:"editor"`
	Cache   Cache   `mapstructure:"cache"`
	Health  Health  `mapstructure:"health"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: Server{
			Host:           "localhost",
			Port:           8000,
			LogLevel:       "info",
			RequestTimeout: DefaultRequestTimeout,
		},
		Session: Session{
			StorageRoot:  "./sessions",
			Headless:     true,
			LaunchArgs:   []string{"--no-sandbox", "--disable-setuid-sandbox"},
			MaxQRRetries: DefaultMaxQRRetries,
			AuthTimeout:  DefaultAuthTimeout,
		},
		Editor: Editor{
			BaseURL:    "http://localhost:8001",
			Timeout:    DefaultEditorTimeout,
			MaxRetries: 3,
		},
		Cache: Cache{
			TTL:             DefaultCacheTTL,
			CleanupInterval: DefaultCacheCleanupInterval,
		},
		Health: Health{
			CheckInterval:   DefaultHealthCheckInterval,
			StaleSessionAge: DefaultStaleSessionAge,
		},
	}
}

// Validate checks the configuration and returns every problem found, not
// just the first one.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Session.StorageRoot == "" {
		errs = append(errs, errors.New("session storage root must not be empty"))
	}
	if c.Session.MaxQRRetries < 1 {
		errs = append(errs, fmt.Errorf("max QR retries must be at least 1, got %d", c.Session.MaxQRRetries))
	}
	if c.Session.AuthTimeout <= 0 {
		errs = append(errs, errors.New("auth timeout must be positive"))
	}
	if c.Editor.BaseURL == "" {
		errs = append(errs, errors.New("editor base URL must not be empty"))
	}
	if c.Editor.MaxRetries < 0 {
		errs = append(errs, errors.New("editor max retries must be non-negative"))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache TTL must be positive"))
	}
	if c.Cache.CleanupInterval <= 0 {
		errs = append(errs, errors.New("cache cleanup interval must be positive"))
	}
	if c.Health.CheckInterval <= 0 {
		errs = append(errs, errors.New("health check interval must be positive"))
	}
	if c.Health.StaleSessionAge <= 0 {
		errs = append(errs, errors.New("stale session age must be positive"))
	}

	return errors.Join(errs...)
}
