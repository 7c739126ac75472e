package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from an optional config.yaml and from
// environment variables prefixed with INKWELL_. Environment variables
// take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("INKWELL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; env vars can carry everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.ollama_base_url", "http://127.0.0.1:11434")
	v.SetDefault("llm.ollama_model", "llama3.1")
	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.retry_base_delay", 5*time.Second)
	v.SetDefault("worker.retry_max_delay", 10*time.Minute)
	v.SetDefault("worker.soft_time_limit", 5*time.Minute)
	v.SetDefault("worker.hard_time_limit", 10*time.Minute)
	v.SetDefault("worker.sweep_interval", 5*time.Minute)
	v.SetDefault("worker.retention", 7*24*time.Hour)
}
