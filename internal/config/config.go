package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr            string
	LogLevel        string
	RedisURL        string
	DatabaseURL     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	OTLPEndpoint    string

	// AWS integrations: Bedrock as the high-reasoning backend,
	// Secrets Manager for provider keys, SNS for credit alerts,
	// SQS for the billing retry queue.
	AWSRegion          string
	BedrockEnabled     bool
	ProviderSecretName string
	AlertTopicARN      string
	BillingRetryQueue  string

	LowCreditThreshold int64

	AdminAuthEnabled  bool
	AdminUsername     string
	AdminPasswordHash string
	EncryptionKey     string

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:               getEnv("ADDR", ":8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RedisURL:           getEnv("REDIS_URL", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		OTLPEndpoint:       getEnv("OTLP_ENDPOINT", ""),
		AWSRegion:          getEnv("AWS_REGION", ""),
		BedrockEnabled:     getEnv("BEDROCK_ENABLED", "false") == "true",
		ProviderSecretName: getEnv("PROVIDER_SECRET_NAME", ""),
		AlertTopicARN:      getEnv("ALERT_TOPIC_ARN", ""),
		BillingRetryQueue:  getEnv("BILLING_RETRY_QUEUE_URL", ""),
		LowCreditThreshold: getInt64Env("LOW_CREDIT_THRESHOLD", 500),
		AdminAuthEnabled:   getEnv("ADMIN_AUTH_ENABLED", "false") == "true",
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPasswordHash:  getEnv("ADMIN_PASSWORD_HASH", ""),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}
