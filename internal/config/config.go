/**
 * @description
 * This package handles the configuration management for the service. It uses the
 * Viper library to read configuration from environment variables, providing a
 * centralized and straightforward way to manage application settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the payment-relay-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	GatewayAPIBaseURL        string `mapstructure:"GATEWAY_API_BASE_URL"`
	GatewaySecretKey         string `mapstructure:"GATEWAY_SECRET_KEY"`
	GatewayMerchantCode      string `mapstructure:"GATEWAY_MERCHANT_CODE"`
	GatewayUsername          string `mapstructure:"GATEWAY_USERNAME"`
	GatewayPassword          string `mapstructure:"GATEWAY_PASSWORD"`
	SandboxMode              bool   `mapstructure:"SANDBOX_MODE"`
	MonitoringTimeoutSeconds int    `mapstructure:"MONITORING_TIMEOUT_SECONDS"`
	QrRateLimitPerMinute     int    `mapstructure:"QR_RATE_LIMIT_PER_MINUTE"`
	AllowedOrigins           string `mapstructure:"ALLOWED_ORIGINS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "payment_relay:rate_limit")
	viper.SetDefault("MONITORING_TIMEOUT_SECONDS", 300)
	viper.SetDefault("QR_RATE_LIMIT_PER_MINUTE", 30)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PAYMENT_RELAY_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("GATEWAY_API_BASE_URL")
	_ = viper.BindEnv("GATEWAY_SECRET_KEY")
	_ = viper.BindEnv("GATEWAY_MERCHANT_CODE")
	_ = viper.BindEnv("GATEWAY_USERNAME")
	_ = viper.BindEnv("GATEWAY_PASSWORD")
	_ = viper.BindEnv("SANDBOX_MODE")
	_ = viper.BindEnv("MONITORING_TIMEOUT_SECONDS")
	_ = viper.BindEnv("QR_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("ALLOWED_ORIGINS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		// If the config file is not found, we can ignore the error.
		// For other errors, we should return them.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.GatewayAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.GatewayAPIBaseURL), "/")
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "payment_relay:rate_limit"
	}

	if config.MonitoringTimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive monitoring timeout; using default\" seconds=%d", config.MonitoringTimeoutSeconds)
		config.MonitoringTimeoutSeconds = 300
	}
	if config.QrRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative qr rate limit configured; coercing to zero\" limit=%d", config.QrRateLimitPerMinute)
		config.QrRateLimitPerMinute = 0
	}

	return
}

// AllowedOriginList splits the comma-separated ALLOWED_ORIGINS value.
func (c Config) AllowedOriginList() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
