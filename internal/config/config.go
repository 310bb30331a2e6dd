package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	// Server
	HTTPAddr string
	LogLevel string

	// Telegram
	TelegramBotToken      string
	TelegramAPIURL        string // override for tests/proxies, e.g. http://localhost:8081
	TelegramWebhookSecret string // X-Telegram-Bot-Api-Secret-Token value; empty disables the check

	// REST surface
	APIKeyHash string // bcrypt hash of the bearer key for /v1/render; empty disables the endpoint

	// Gemini API
	GeminiAPIKey      string
	GeminiAPIEndpoint string // if set, overrides default Gemini API base URL
	GeminiModelFlash  string

	// Image synthesis
	ImageEndpoint string // base URL of the image service; the prompt is appended under /prompt/
	ImageTimeout  time.Duration
	TextTimeout   time.Duration // ceiling for prompt-enhancement and ascii-art calls

	// Defaults for inbound requests
	DefaultStyle  string
	DefaultWidth  int
	DefaultHeight int

	// Kafka (optional pipeline events)
	KafkaBrokers     []string
	KafkaTopicEvents string

	// S3/Storage (optional image archive)
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3PublicURL string

	// Database (optional delivery journal)
	DatabaseURL string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramAPIURL:        getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),

		APIKeyHash: getEnv("API_KEY_HASH", ""),

		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		GeminiAPIEndpoint: getEnv("GEMINI_API_ENDPOINT", ""),
		GeminiModelFlash:  getEnv("GEMINI_MODEL_FLASH", "gemini-2.5-flash-lite"),

		ImageEndpoint: getEnv("IMAGE_ENDPOINT", "https://image.pollinations.ai"),
		ImageTimeout:  getEnvDuration("IMAGE_TIMEOUT", 30*time.Second),
		TextTimeout:   getEnvDuration("TEXT_TIMEOUT", 30*time.Second),

		DefaultStyle:  getEnv("DEFAULT_STYLE", "realistic"),
		DefaultWidth:  getEnvInt("DEFAULT_WIDTH", 1024),
		DefaultHeight: getEnvInt("DEFAULT_HEIGHT", 1024),

		KafkaBrokers:     splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopicEvents: getEnv("KAFKA_TOPIC_EVENTS", "inklet.events.v1"),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3Region:    getEnv("S3_REGION", "us-east-1"),
		S3Bucket:    getEnv("S3_BUCKET", "inklet-images"),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3UseSSL:    getEnvBool("S3_USE_SSL", false),
		S3PublicURL: getEnv("S3_PUBLIC_URL", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// splitCSV splits a comma-separated list, dropping empty entries.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
