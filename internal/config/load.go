package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "WABRIDGE"

// Load reads configuration with precedence: environment variables over the
// config file over defaults. path may be empty, in which case wabridge.yaml
// is searched in the working directory and a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()

	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wabridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.log_level", cfg.Server.LogLevel)
	v.SetDefault("server.request_timeout", cfg.Server.RequestTimeout)

	v.SetDefault("session.storage_root", cfg.Session.StorageRoot)
	v.SetDefault("session.headless", cfg.Session.Headless)
	v.SetDefault("session.launch_args", cfg.Session.LaunchArgs)
	v.SetDefault("session.max_qr_retries", cfg.Session.MaxQRRetries)
	v.SetDefault("session.auth_timeout", cfg.Session.AuthTimeout)

	v.SetDefault("editor.base_url", cfg.Editor.BaseURL)
	v.SetDefault("editor.timeout", cfg.Editor.Timeout)
	v.SetDefault("editor.max_retries", cfg.Editor.MaxRetries)

	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.cleanup_interval", cfg.Cache.CleanupInterval)

	v.SetDefault("health.check_interval", cfg.Health.CheckInterval)
	v.SetDefault("health.stale_session_age", cfg.Health.StaleSessionAge)
}
