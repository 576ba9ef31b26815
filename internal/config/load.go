package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. ADAT_QUEUE_URL.
const EnvPrefix = "ADAT"

// requiredKeys have no default and must come from the environment or a file.
var requiredKeys = []string{
	"queue.driver",
	"queue.url",
	"store.driver",
	"store.url",
	"store.api_key",
	"task.processing_timeout",
	"task.result_retention",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.upstream_timeout", "5s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("store.schema", "public")
	v.SetDefault("task.visibility_timeout", "0s")
	v.SetDefault("task.max_deliveries", 1)
	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.poll_interval", "1s")
	v.SetDefault("task.reap_interval", "30s")
	v.SetDefault("task.session_ttl", "720h")
	v.SetDefault("task.evaluation_delay", "3s")
}

// Load reads configuration from environment variables and, when configFile
// is not empty, from that file. Environment variables take precedence.
// Missing or invalid settings return an error; callers treat it as fatal.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range requiredKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Task.VisibilityTimeout == 0 {
		cfg.Task.VisibilityTimeout = cfg.Task.ProcessingTimeout + leaseGrace
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.Task.VisibilityTimeout < cfg.Task.ProcessingTimeout {
		return nil, fmt.Errorf(
			"config validation failed: task.visibility_timeout (%s) must not be shorter than task.processing_timeout (%s)",
			cfg.Task.VisibilityTimeout, cfg.Task.ProcessingTimeout)
	}

	return &cfg, nil
}
