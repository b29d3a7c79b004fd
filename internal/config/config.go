package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Service Ports
	HTTPPort int `env:"HTTP_PORT" default:"8080"`

	// Chat log storage
	StoreBackend    string        `env:"STORE_BACKEND" default:"sqlite"`
	DatabaseURL     string        `env:"DATABASE_URL"` // postgres DSN
	SQLitePath      string        `env:"SQLITE_PATH" default:"./data/geminichat.db"`
	RedisURL        string        `env:"REDIS_URL" default:"redis://localhost:6379"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	StoreTTL        time.Duration `env:"STORE_TTL" default:"0"` // 0 keeps logs forever
	MemoryStoreSize int           `env:"MEMORY_STORE_SIZE" default:"1024"`

	// Chat room behaviour
	ChatPageSize       int           `env:"CHAT_PAGE_SIZE" default:"20"`
	ChatPageLoadDelay  time.Duration `env:"CHAT_PAGE_LOAD_DELAY" default:"600ms"`
	ChatReplyBaseDelay time.Duration `env:"CHAT_REPLY_BASE_DELAY" default:"1200ms"`
	ChatReplyJitter    time.Duration `env:"CHAT_REPLY_JITTER" default:"1000ms"`
	ChatReplyPrefix    string        `env:"CHAT_REPLY_PREFIX" default:"Gemini: "`
	ChatDemoHistory    int           `env:"CHAT_DEMO_HISTORY" default:"0"`

	// Rate limiting on message sends, per client IP
	SendRateLimit int `env:"SEND_RATE_LIMIT" default:"5"` // tokens per second
	SendRateBurst int `env:"SEND_RATE_BURST" default:"10"`

	// Monitoring
	PrometheusEnabled bool `env:"PROMETHEUS_ENABLED" default:"true"`

	// Development
	LogLevel    string   `env:"LOG_LEVEL" default:"info"`
	LogFormat   string   `env:"LOG_FORMAT" default:"text"`
	CORSOrigins []string `env:"CORS_ORIGINS" default:"http://localhost:3000"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, system env vars still apply
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Warning: .env file not loaded: %v\n", err)
	}

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.HTTPPort, "HTTP_PORT", 8080); err != nil {
		return nil, err
	}

	// Storage
	if err := loadEnvString(&config.StoreBackend, "STORE_BACKEND", BackendSQLite); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.DatabaseURL, "DATABASE_URL", ""); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.SQLitePath, "SQLITE_PATH", "./data/geminichat.db"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", "redis://localhost:6379"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisPassword, "REDIS_PASSWORD", ""); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.StoreTTL, "STORE_TTL", 0); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.MemoryStoreSize, "MEMORY_STORE_SIZE", 1024); err != nil {
		return nil, err
	}

	// Chat room
	if err := loadEnvInt(&config.ChatPageSize, "CHAT_PAGE_SIZE", 20); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ChatPageLoadDelay, "CHAT_PAGE_LOAD_DELAY", 600*time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ChatReplyBaseDelay, "CHAT_REPLY_BASE_DELAY", 1200*time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.ChatReplyJitter, "CHAT_REPLY_JITTER", 1000*time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.ChatReplyPrefix, "CHAT_REPLY_PREFIX", "Gemini: "); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.ChatDemoHistory, "CHAT_DEMO_HISTORY", 0); err != nil {
		return nil, err
	}

	// Rate limiting
	if err := loadEnvInt(&config.SendRateLimit, "SEND_RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.SendRateBurst, "SEND_RATE_BURST", 10); err != nil {
		return nil, err
	}

	// Monitoring
	if err := loadEnvBool(&config.PrometheusEnabled, "PROMETHEUS_ENABLED", true); err != nil {
		return nil, err
	}

	// Development
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "text"); err != nil {
		return nil, err
	}
	if err := loadEnvStringSlice(&config.CORSOrigins, "CORS_ORIGINS", []string{"http://localhost:3000"}); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvStringSlice(target *[]string, key string, defaultValue []string) error {
	if value := os.Getenv(key); value != "" {
		*target = strings.Split(value, ",")
		// Trim whitespace from each element
		for i, v := range *target {
			(*target)[i] = strings.TrimSpace(v)
		}
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errors = append(errors, "HTTP_PORT must be between 1 and 65535")
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres, BackendRedis}
	if !contains(validBackends, c.StoreBackend) {
		errors = append(errors, fmt.Sprintf("STORE_BACKEND must be one of: %s", strings.Join(validBackends, ", ")))
	}
	if c.StoreBackend == BackendPostgres && c.DatabaseURL == "" {
		errors = append(errors, "DATABASE_URL is required when STORE_BACKEND is postgres")
	}
	if c.StoreBackend == BackendSQLite && c.SQLitePath == "" {
		errors = append(errors, "SQLITE_PATH is required when STORE_BACKEND is sqlite")
	}
	if c.StoreTTL < 0 {
		errors = append(errors, "STORE_TTL must not be negative")
	}
	if c.MemoryStoreSize < 1 {
		errors = append(errors, "MEMORY_STORE_SIZE must be positive")
	}

	if c.ChatPageSize < 1 {
		errors = append(errors, "CHAT_PAGE_SIZE must be positive")
	}
	if c.ChatPageLoadDelay < 0 || c.ChatReplyBaseDelay < 0 || c.ChatReplyJitter < 0 {
		errors = append(errors, "chat delays must not be negative")
	}
	if c.ChatDemoHistory < 0 {
		errors = append(errors, "CHAT_DEMO_HISTORY must not be negative")
	}

	if c.SendRateLimit < 1 || c.SendRateBurst < 1 {
		errors = append(errors, "SEND_RATE_LIMIT and SEND_RATE_BURST must be positive")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
