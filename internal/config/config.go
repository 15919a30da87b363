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
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the wallet-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                 string `mapstructure:"SERVER_PORT"`
	DatabaseURL                string `mapstructure:"DATABASE_URL"`
	RedisURL                   string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix       string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL                string `mapstructure:"RABBITMQ_URL"`
	LedgerEventExchange        string `mapstructure:"LEDGER_EVENT_EXCHANGE"`
	PaystackBaseURL            string `mapstructure:"PAYSTACK_BASE_URL"`
	PaystackSecretKey          string `mapstructure:"PAYSTACK_SECRET_KEY"`
	PaystackCallbackURL        string `mapstructure:"PAYSTACK_CALLBACK_URL"`
	JWTSecret                  string `mapstructure:"JWT_SECRET"`
	AllowedOrigins             string `mapstructure:"ALLOWED_ORIGINS"`
	TransferMin                string `mapstructure:"TRANSFER_MIN"`
	TransferMax                string `mapstructure:"TRANSFER_MAX"`
	TransferRateLimitPerMinute int    `mapstructure:"TRANSFER_RATE_LIMIT_PER_MINUTE"`
	VerifyRateLimitPerMinute   int    `mapstructure:"VERIFY_RATE_LIMIT_PER_MINUTE"`
	WebhookStrictSignature     bool   `mapstructure:"WEBHOOK_STRICT_SIGNATURE"`
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
	viper.SetDefault("LEDGER_EVENT_EXCHANGE", "wallet_service.ledger_events")
	viper.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "centpay:rate_limit")
	viper.SetDefault("TRANSFER_MIN", "1.00")
	viper.SetDefault("TRANSFER_MAX", "1000000.00")
	viper.SetDefault("TRANSFER_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("VERIFY_RATE_LIMIT_PER_MINUTE", 60)
	viper.SetDefault("WEBHOOK_STRICT_SIGNATURE", true)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "WALLET_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("LEDGER_EVENT_EXCHANGE")
	_ = viper.BindEnv("PAYSTACK_BASE_URL")
	_ = viper.BindEnv("PAYSTACK_SECRET_KEY")
	_ = viper.BindEnv("PAYSTACK_CALLBACK_URL")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("TRANSFER_MIN")
	_ = viper.BindEnv("TRANSFER_MAX")
	_ = viper.BindEnv("TRANSFER_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("WEBHOOK_STRICT_SIGNATURE")

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
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "centpay:rate_limit"
	}
	config.PaystackBaseURL = strings.TrimRight(strings.TrimSpace(config.PaystackBaseURL), "/")

	if !isValidAmountString(config.TransferMin) {
		log.Printf("level=warn component=config msg=\"invalid TRANSFER_MIN; using default\" value=%q", config.TransferMin)
		config.TransferMin = "1.00"
	}
	if !isValidAmountString(config.TransferMax) {
		log.Printf("level=warn component=config msg=\"invalid TRANSFER_MAX; using default\" value=%q", config.TransferMax)
		config.TransferMax = "1000000.00"
	}

	if config.TransferRateLimitPerMinute <= 0 {
		config.TransferRateLimitPerMinute = 30
	}
	if config.VerifyRateLimitPerMinute <= 0 {
		config.VerifyRateLimitPerMinute = 60
	}

	return
}

// AllowedOriginList splits the comma-separated ALLOWED_ORIGINS value.
func (c Config) AllowedOriginList() []string {
	raw := strings.TrimSpace(c.AllowedOrigins)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func isValidAmountString(value string) bool {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return false
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	return err == nil && parsed > 0
}
