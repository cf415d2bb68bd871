package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	_, cfg, err := load(configPath)
	return cfg, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	config := GetDefaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/l10n-sentinel/")
	v.AddConfigPath("$HOME/.l10n-sentinel/")

	// Environment variable overrides
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return v, config, nil
}

// bindEnv registers keys that have no file entry so AutomaticEnv can
// override them during Unmarshal
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.port",
		"logging.level",
		"logging.format",
		"privacy.enabled",
		"privacy.block_other_pii",
		"tokenizer.glossary_file",
		"tokenizer.html_tags",
		"filter.max_length",
		"cache.enabled",
		"cache.redis_url",
		"audit.enabled",
		"audit.database_url",
		"rate_limit.enabled",
		"rate_limit.requests_per_min",
		"websocket.auth.username",
		"websocket.auth.password",
	} {
		_ = v.BindEnv(key)
	}
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.Filter.MaxLength <= 0 {
		return fmt.Errorf("invalid filter max_length: %d (must be positive)", config.Filter.MaxLength)
	}

	if config.Privacy.Masking.Enabled && !strings.Contains(config.Privacy.Masking.Format, "{{TYPE}}") {
		return fmt.Errorf("invalid masking format: %q (must contain {{TYPE}})", config.Privacy.Masking.Format)
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("cache enabled but redis_url is empty")
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit enabled but database_url is empty")
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	if _, err := config.RateLimit.TrustedPrefixes(); err != nil {
		return fmt.Errorf("invalid rate_limit settings: %w", err)
	}

	if config.ETL.WorkerCount <= 0 || config.ETL.BatchSize <= 0 {
		return fmt.Errorf("invalid etl settings: worker_count=%d batch_size=%d", config.ETL.WorkerCount, config.ETL.BatchSize)
	}

	return nil
}

// Watch loads configPath and invokes callback with every valid revision
// written to it. Invalid revisions are passed to onError and skipped.
func Watch(configPath string, callback func(*Config), onError func(error)) error {
	v, _, err := load(configPath)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}

		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			onError(fmt.Errorf("failed to unmarshal config: %w", err))
			return
		}

		if err := validateConfig(newConfig); err != nil {
			onError(fmt.Errorf("invalid configuration: %w", err))
			return
		}

		callback(newConfig)
	})
	v.WatchConfig()

	return nil
}
