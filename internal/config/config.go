// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"APP_ENV"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	// RedisMode selects the key-value backend driver: "single" or "cluster".
	RedisMode  string `mapstructure:"REDIS_MODE"`
	RedisURL   string `mapstructure:"REDIS_URL"`
	RedisAddrs string `mapstructure:"REDIS_ADDRS"`

	// Connection retry tunables. Single-node mode uses one fixed timeout;
	// cluster mode retries with capped exponential backoff.
	RedisConnectTimeoutSeconds int `mapstructure:"REDIS_CONNECT_TIMEOUT_SECONDS"`
	RedisMaxConnectAttempts    int `mapstructure:"REDIS_MAX_CONNECT_ATTEMPTS"`
	RedisBackoffBaseMillis     int `mapstructure:"REDIS_BACKOFF_BASE_MILLIS"`
	RedisBackoffCapMillis      int `mapstructure:"REDIS_BACKOFF_CAP_MILLIS"`

	ModerationWorkers          int `mapstructure:"MODERATION_WORKERS"`
	ModerationJobRetries       int `mapstructure:"MODERATION_JOB_RETRIES"`
	ModerationCheckTimeoutSecs int `mapstructure:"MODERATION_CHECK_TIMEOUT_SECONDS"`
	ModerationRetentionDays    int `mapstructure:"MODERATION_RETENTION_DAYS"`

	// Room-level defaults applied when a chat room is provisioned.
	DefaultProfanityFilter bool `mapstructure:"DEFAULT_PROFANITY_FILTER"`
	DefaultSpamFilter      bool `mapstructure:"DEFAULT_SPAM_FILTER"`
	DefaultLinkFilter      bool `mapstructure:"DEFAULT_LINK_FILTER"`
	DefaultAutoDelete      bool `mapstructure:"DEFAULT_AUTO_DELETE"`

	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err == nil {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	// Set default values for development
	viper.SetDefault("PORT", "8480")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("JWT_ISSUER", "podium-api")
	viper.SetDefault("JWT_AUDIENCE", "podium-client")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "podium")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_MODE", "single")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("REDIS_ADDRS", "")
	viper.SetDefault("REDIS_CONNECT_TIMEOUT_SECONDS", 10)
	viper.SetDefault("REDIS_MAX_CONNECT_ATTEMPTS", 3)
	viper.SetDefault("REDIS_BACKOFF_BASE_MILLIS", 250)
	viper.SetDefault("REDIS_BACKOFF_CAP_MILLIS", 2000)
	viper.SetDefault("MODERATION_WORKERS", 4)
	viper.SetDefault("MODERATION_JOB_RETRIES", 2)
	viper.SetDefault("MODERATION_CHECK_TIMEOUT_SECONDS", 5)
	viper.SetDefault("MODERATION_RETENTION_DAYS", 90)
	viper.SetDefault("DEFAULT_PROFANITY_FILTER", true)
	viper.SetDefault("DEFAULT_SPAM_FILTER", true)
	viper.SetDefault("DEFAULT_LINK_FILTER", false)
	viper.SetDefault("DEFAULT_AUTO_DELETE", false)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.RedisMode != "single" && c.RedisMode != "cluster" {
		return fmt.Errorf("REDIS_MODE must be 'single' or 'cluster', got %q", c.RedisMode)
	}
	if c.RedisMode == "cluster" && len(c.ClusterAddrs()) == 0 {
		return errors.New("REDIS_ADDRS is required when REDIS_MODE is 'cluster'")
	}
	if c.RedisMaxConnectAttempts < 1 {
		return errors.New("REDIS_MAX_CONNECT_ATTEMPTS must be at least 1")
	}
	if c.ModerationWorkers < 1 {
		return errors.New("MODERATION_WORKERS must be at least 1")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	// Strict checks for production
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else {
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
	}

	return nil
}

// ClusterAddrs returns the parsed cluster node address list.
func (c *Config) ClusterAddrs() []string {
	if c.RedisAddrs == "" {
		return nil
	}
	parts := strings.Split(c.RedisAddrs, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}

// ConnectTimeout returns the single-node connection timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.RedisConnectTimeoutSeconds) * time.Second
}

// BackoffBase returns the initial retry delay for cluster connections.
func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.RedisBackoffBaseMillis) * time.Millisecond
}

// BackoffCap returns the maximum retry delay for cluster connections.
func (c *Config) BackoffCap() time.Duration {
	return time.Duration(c.RedisBackoffCapMillis) * time.Millisecond
}

// ContentCheckTimeout bounds a single content-filter evaluation.
func (c *Config) ContentCheckTimeout() time.Duration {
	return time.Duration(c.ModerationCheckTimeoutSecs) * time.Second
}

// RetentionAge returns the minimum age before resolved moderation log entries are purged.
func (c *Config) RetentionAge() time.Duration {
	return time.Duration(c.ModerationRetentionDays) * 24 * time.Hour
}
