package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// RedisConfig contains settings for the Redis instance backing the
// task queue and the broadcast bus.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"required"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig contains all generative model integration settings.
// Provider selects which adapter serves text generation; the Ollama
// adapter is the only one that supports fragment streaming.
type LLMConfig struct {
	Provider      string `mapstructure:"provider" validate:"required,oneof=ollama gemini"`
	OllamaBaseURL string `mapstructure:"ollama_base_url"`
	OllamaModel   string `mapstructure:"ollama_model"`
	GeminiAPIKey  string `mapstructure:"gemini_api_key"`
	GeminiModel   string `mapstructure:"gemini_model"`
}

// WorkerConfig bounds the behavior of the background worker pool.
type WorkerConfig struct {
	Count          int           `mapstructure:"count" validate:"required,gt=0"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"required"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay" validate:"required"`
	SoftTimeLimit  time.Duration `mapstructure:"soft_time_limit" validate:"required"`
	HardTimeLimit  time.Duration `mapstructure:"hard_time_limit" validate:"required"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval" validate:"required"`
	Retention      time.Duration `mapstructure:"retention" validate:"required"`
}
