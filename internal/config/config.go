/**
 * @description
 * This package handles the configuration management for the banking service. It uses the
 * Viper library to read configuration from an optional .env file and environment
 * variables, shared by the API server, the outbox dispatcher and the admin seeder.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */
package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const minJWTSecretBytes = 32

// Config holds all the configuration variables for the banking binaries.
type Config struct {
	ServerPort              string        `mapstructure:"SERVER_PORT"`
	DatabaseURL             string        `mapstructure:"DATABASE_URL"`
	DatabaseMaxConns        int32         `mapstructure:"DATABASE_MAX_CONNS"`
	JWTSecret               string        `mapstructure:"JWT_SECRET"`
	JWTExpiry               time.Duration `mapstructure:"JWT_EXPIRY"`
	UploadDir               string        `mapstructure:"UPLOAD_DIR"`
	MaxUploadBytes          int64         `mapstructure:"MAX_UPLOAD_BYTES"`
	CORSAllowedOrigins      string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LoginRateLimitPerMinute int           `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	RedisURL                string        `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix    string        `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL             string        `mapstructure:"RABBITMQ_URL"`
	OutboxDispatchSchedule  string        `mapstructure:"OUTBOX_DISPATCH_SCHEDULE"`
	OutboxBatchSize         int           `mapstructure:"OUTBOX_BATCH_SIZE"`
	RequestTimeout          time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel                string        `mapstructure:"LOG_LEVEL"`
}

// LoadConfig reads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DATABASE_MAX_CONNS", 10)
	viper.SetDefault("JWT_EXPIRY", "15m")
	viper.SetDefault("UPLOAD_DIR", "uploads")
	viper.SetDefault("MAX_UPLOAD_BYTES", 5<<20)
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 20)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "avs:rate_limit")
	viper.SetDefault("OUTBOX_DISPATCH_SCHEDULE", "@every 2s")
	viper.SetDefault("OUTBOX_BATCH_SIZE", 50)
	viper.SetDefault("REQUEST_TIMEOUT", "30s")
	viper.SetDefault("LOG_LEVEL", "info")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DATABASE_MAX_CONNS")
	_ = viper.BindEnv("JWT_SECRET", "JWT_SECRET", "JWT_SECRET_KEY")
	_ = viper.BindEnv("JWT_EXPIRY")
	_ = viper.BindEnv("UPLOAD_DIR", "UPLOAD_DIR", "UPLOAD_FOLDER")
	_ = viper.BindEnv("MAX_UPLOAD_BYTES")
	_ = viper.BindEnv("CORS_ALLOWED_ORIGINS")
	_ = viper.BindEnv("LOGIN_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("OUTBOX_DISPATCH_SCHEDULE")
	_ = viper.BindEnv("OUTBOX_BATCH_SIZE")
	_ = viper.BindEnv("REQUEST_TIMEOUT")
	_ = viper.BindEnv("LOG_LEVEL")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "avs:rate_limit"
	}
	if config.JWTExpiry <= 0 {
		config.JWTExpiry = 15 * time.Minute
	}
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 5 << 20
	}
	if config.LoginRateLimitPerMinute <= 0 {
		config.LoginRateLimitPerMinute = 20
	}
	if config.OutboxBatchSize <= 0 {
		config.OutboxBatchSize = 50
	}
	if config.DatabaseMaxConns <= 0 {
		config.DatabaseMaxConns = 10
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 30 * time.Second
	}

	return
}

// Require reports the first of the named settings that is missing or unusable.
// Each binary names only the settings it actually depends on.
func (c Config) Require(keys ...string) error {
	for _, key := range keys {
		switch key {
		case "DATABASE_URL":
			if c.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
		case "JWT_SECRET":
			if c.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			if len(c.JWTSecret) < minJWTSecretBytes {
				return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretBytes)
			}
		case "RABBITMQ_URL":
			if strings.TrimSpace(c.RabbitMQURL) == "" {
				return fmt.Errorf("RABBITMQ_URL is required")
			}
		default:
			return fmt.Errorf("unknown configuration key %q", key)
		}
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
