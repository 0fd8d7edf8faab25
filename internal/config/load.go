package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. TASKFORGE_DATABASE_URL for database.url.
const EnvPrefix = "TASKFORGE"

// setDefaults registers a default for every key. Viper only consults the
// environment for keys it already knows about, so keys without a sensible
// default are registered with their zero value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("queue.redis_addr", "localhost:6379")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.name", "tasks")
	v.SetDefault("queue.concurrency", 4)

	v.SetDefault("orchestrator.max_concurrent", 2)
	v.SetDefault("orchestrator.admission_schedule", "@every 10s")
	v.SetDefault("orchestrator.reconcile_schedule", "@every 1m")
	v.SetDefault("orchestrator.stale_after", "0s")
	v.SetDefault("orchestrator.manual_triggers_per_minute", 6)

	v.SetDefault("agent.gemini_api_key", "")
	v.SetDefault("agent.model_name", "gemini-2.0-flash")
	v.SetDefault("agent.timeout", "2m")
	v.SetDefault("agent.max_retries", 3)
	v.SetDefault("agent.retry_delay", "2s")
}

// Load reads configuration from environment variables and an optional config
// file. Environment variables take precedence over values from the file.
// If configFile is empty, a file named taskforge.{yaml,json,toml} is looked up
// in the working directory and silently skipped when absent.
// Returns a populated Config struct or an error if loading or validation fails.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("taskforge")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags on cfg and returns a single error listing
// every invalid field.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
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
