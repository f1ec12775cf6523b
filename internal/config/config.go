package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	UsersTable string

	JWTSecret string
	JWTExpiry time.Duration

	OTPValidity time.Duration

	SMSEnabled bool
	SNSRegion  string

	AllowedOrigins []string // CORS allowed origins

	// TrustProxyHeaders makes the rate limiter honor X-Forwarded-For /
	// X-Real-Ip. Enable only behind a proxy that strips client-sent values.
	TrustProxyHeaders bool
}

// IsProduction reports whether the app runs in a production environment.
// Development-only conveniences (like echoing an undelivered OTP back to the
// caller) must be disabled when this is true.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", "8080"),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		UsersTable: getEnv("DYNAMO_TABLE_USERS", "users"),

		JWTSecret: getEnv("JWT_SECRET", "change_this_secret"),
		JWTExpiry: time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,

		OTPValidity: time.Duration(getEnvInt("OTP_VALIDITY_MINUTES", 5)) * time.Minute,

		SMSEnabled: getEnvBool("SMS_ENABLED", false),
		SNSRegion:  getEnv("SNS_REGION", "us-east-1"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),

		TrustProxyHeaders: getEnvBool("TRUST_PROXY_HEADERS", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
