package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// API Configuration
	APIPort        string
	APIHost        string
	APIEnvironment string

	// Record store (Airtable-compatible REST API)
	RecordStoreBaseURL string
	RecordStoreToken   string
	RecordStoreBase    string
	UsersTable         string
	ContentTable       string
	ResumeTable        string

	// Redis
	RedisURL string

	// JWT & Security
	JWTSecret          string
	JWTExpirationHours int

	// Rate Limiting
	RateLimitRequestsPerMinute int
	RateLimitBurst             int

	// Stripe
	StripeSecretKey     string
	StripeWebhookSecret string

	// Fulfillment (automation webhook that performs content generation)
	FulfillmentWebhookURL string
	FulfillmentSecret     string

	// Frontend (dashboard that receives checkout redirects)
	FrontendURL string

	// Logging
	LogLevel  string
	LogFormat string

	// Resume file storage
	StorageType      string
	StorageLocalPath string
	AWSAccessKeyID   string
	AWSSecretKey     string
	AWSRegion        string
	S3Bucket         string

	// Email
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	// Sentry
	SentryDSN         string
	SentryEnvironment string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// API
		APIPort:        getEnv("API_PORT", "8080"),
		APIHost:        getEnv("API_HOST", "0.0.0.0"),
		APIEnvironment: getEnv("API_ENVIRONMENT", "development"),

		// Record store
		RecordStoreBaseURL: getEnv("RECORD_STORE_BASE_URL", "https://api.airtable.com/v0"),
		RecordStoreToken:   getEnv("RECORD_STORE_TOKEN", ""),
		RecordStoreBase:    getEnv("RECORD_STORE_BASE_ID", ""),
		UsersTable:         getEnv("RECORD_STORE_USERS_TABLE", "Users"),
		ContentTable:       getEnv("RECORD_STORE_CONTENT_TABLE", "Content"),
		ResumeTable:        getEnv("RECORD_STORE_RESUME_TABLE", "Resumes"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		// JWT
		JWTSecret:          getEnv("JWT_SECRET", "change-this-in-production"),
		JWTExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),

		// Rate Limiting
		RateLimitRequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),
		RateLimitBurst:             getEnvAsInt("RATE_LIMIT_BURST", 10),

		// Stripe
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		// Fulfillment
		FulfillmentWebhookURL: getEnv("FULFILLMENT_WEBHOOK_URL", ""),
		FulfillmentSecret:     getEnv("FULFILLMENT_SECRET", ""),

		// Frontend
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3001"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Storage
		StorageType:      getEnv("STORAGE_TYPE", "local"),
		StorageLocalPath: getEnv("STORAGE_LOCAL_PATH", "./data/resumes"),
		AWSAccessKeyID:   getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:     getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:         getEnv("S3_BUCKET", ""),

		// Email
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", "noreply@contentdesk.io"),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "ContentDesk"),

		// Sentry
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "development"),
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
