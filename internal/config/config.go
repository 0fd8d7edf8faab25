package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	Auth         AuthConfig         `mapstructure:"auth" validate:"required"`
	Queue        QueueConfig        `mapstructure:"queue" validate:"required"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" validate:"required"`
	Agent        AgentConfig        `mapstructure:"agent"`
}

// ServerConfig contains the HTTP server and logging settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// Driver selects the database/sql driver: "pgx" for PostgreSQL, "sqlite"
// for a local file or in-memory database.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=pgx sqlite"`
	URL             string        `mapstructure:"url" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// AuthConfig contains the token signing settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// QueueConfig contains the execution backend settings.
type QueueConfig struct {
	RedisAddr     string `mapstructure:"redis_addr" validate:"required,hostname_port"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`
	Name          string `mapstructure:"name" validate:"required"`
	Concurrency   int    `mapstructure:"concurrency" validate:"gt=0"`
}

// OrchestratorConfig contains admission and reconciliation settings.
// MaxConcurrent caps the number of tasks in a running status. The schedules
// are cron specs for the periodic admission trigger and the stale-task sweep.
// StaleAfter is how long a task may stay running without an outcome before
// the sweep fails it; zero disables the sweep.
type OrchestratorConfig struct {
	MaxConcurrent           int           `mapstructure:"max_concurrent" validate:"gt=0"`
	AdmissionSchedule       string        `mapstructure:"admission_schedule" validate:"required"`
	ReconcileSchedule       string        `mapstructure:"reconcile_schedule" validate:"required"`
	StaleAfter              time.Duration `mapstructure:"stale_after" validate:"gte=0"`
	ManualTriggersPerMinute int           `mapstructure:"manual_triggers_per_minute" validate:"gt=0"`
}

// AgentConfig contains the executor settings used by the worker. Timeout
// bounds the whole execution of one task; MaxRetries and RetryDelay govern
// retries of a single model call that failed transiently.
type AgentConfig struct {
	GeminiAPIKey string        `mapstructure:"gemini_api_key"`
	ModelName    string        `mapstructure:"model_name" validate:"required"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries   int           `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}
