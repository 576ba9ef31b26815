package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server" validate:"required"`
	Queue  QueueConfig  `mapstructure:"queue" validate:"required"`
	Store  StoreConfig  `mapstructure:"store" validate:"required"`
	Task   TaskConfig   `mapstructure:"task" validate:"required"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// UpstreamTimeout bounds every gateway call to the queue or result store.
	UpstreamTimeout time.Duration `mapstructure:"upstream_timeout" validate:"required,gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
}

// QueueConfig selects the task queue backend.
type QueueConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres sqlite memory"`
	URL    string `mapstructure:"url" validate:"required_unless=Driver memory"`
}

// StoreConfig selects the result store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres sqlite supabase memory"`
	URL    string `mapstructure:"url" validate:"required_unless=Driver memory"`
	APIKey string `mapstructure:"api_key" validate:"required_if=Driver supabase"`
	Schema string `mapstructure:"schema" validate:"required"`
}

// TaskConfig contains worker and retention policy.
type TaskConfig struct {
	// ProcessingTimeout is the hard ceiling on a single evaluation.
	ProcessingTimeout time.Duration `mapstructure:"processing_timeout" validate:"required,gt=0"`
	// ResultRetention is how long terminal task rows stay readable.
	ResultRetention time.Duration `mapstructure:"result_retention" validate:"required,gt=0"`
	// VisibilityTimeout is the claim lease. Zero derives it from ProcessingTimeout.
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" validate:"gte=0"`
	MaxDeliveries     int           `mapstructure:"max_deliveries" validate:"gte=1"`
	WorkerCount       int           `mapstructure:"worker_count" validate:"gte=1"`
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	ReapInterval      time.Duration `mapstructure:"reap_interval" validate:"gt=0"`
	SessionTTL        time.Duration `mapstructure:"session_ttl" validate:"gt=0"`
	EvaluationDelay   time.Duration `mapstructure:"evaluation_delay" validate:"gte=0"`
}

// leaseGrace is added to ProcessingTimeout when no visibility timeout is set,
// so a worker that hits the ceiling can still record the failure itself.
const leaseGrace = 30 * time.Second
