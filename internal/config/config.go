package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// HTTP surface
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int

	// Storage
	DatabaseURL    string
	UseMemoryStore bool
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	DedupTTL       time.Duration

	// Inbound dispatch
	WorkerCount int
	QueueBuffer int

	// Dialog
	IntentsFile      string
	BookingBaseURL   string
	HouseCatalogFile string
	DefaultCurrency  string

	// Property management system (Bnovo)
	BnovoBaseURL   string
	BnovoAccountID string
	BnovoAPIKey    string
	BnovoHotelID   string
	BnovoTimeout   time.Duration
	UseStaticPMS   bool

	// Telegram
	TelegramBotToken       string
	TelegramWebhookSecret  string
	TelegramAdminChatID    string
	TelegramCheckinsChatID string

	// Instagram
	InstagramPageAccessToken string
	InstagramAppSecret       string
	InstagramVerifyToken     string

	// Admin API
	AdminJWTSecret string

	// Daily reports
	PropertyName            string
	ReportsTimezone         string
	DailyReportTimeAdmin    string
	DailyReportTimeCheckins string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	ReportEmailTo     string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:      getEnv("PORT", "8080"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		DedupTTL:       getEnvAsDuration("DEDUP_TTL", 24*time.Hour),

		WorkerCount: getEnvAsInt("WORKER_COUNT", 4),
		QueueBuffer: getEnvAsInt("QUEUE_BUFFER", 256),

		IntentsFile:      getEnv("INTENTS_FILE", ""),
		BookingBaseURL:   strings.TrimSpace(getEnv("BOOKING_BASE_URL", "")),
		HouseCatalogFile: getEnv("HOUSE_CATALOG_FILE", ""),
		DefaultCurrency:  getEnv("DEFAULT_CURRENCY", "RUB"),

		BnovoBaseURL:   getEnv("BNOVO_API_BASE_URL", ""),
		BnovoAccountID: getEnv("BNOVO_ACCOUNT_ID", ""),
		BnovoAPIKey:    getEnv("BNOVO_API_KEY", ""),
		BnovoHotelID:   getEnv("BNOVO_HOTEL_ID", ""),
		BnovoTimeout:   getEnvAsDuration("BNOVO_TIMEOUT", 10*time.Second),
		UseStaticPMS:   getEnvAsBool("USE_STATIC_PMS", false),

		TelegramBotToken:       getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramWebhookSecret:  getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		TelegramAdminChatID:    getEnv("TELEGRAM_ADMIN_CHAT_ID", ""),
		TelegramCheckinsChatID: getEnv("TELEGRAM_CHECKINS_CHAT_ID", ""),

		InstagramPageAccessToken: getEnv("INSTAGRAM_PAGE_ACCESS_TOKEN", ""),
		InstagramAppSecret:       getEnv("INSTAGRAM_APP_SECRET", ""),
		InstagramVerifyToken:     getEnv("INSTAGRAM_VERIFY_TOKEN", ""),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		PropertyName:            getEnv("PROPERTY_NAME", "DREWNO"),
		ReportsTimezone:         getEnv("REPORTS_TZ", getEnv("TZ", "Europe/Minsk")),
		DailyReportTimeAdmin:    getEnv("DAILY_REPORT_TIME_ADMIN", ""),
		DailyReportTimeCheckins: getEnv("DAILY_REPORT_TIME_CHECKINS", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Guest Hub"),
		ReportEmailTo:     getEnv("REPORT_EMAIL_TO", ""),
	}
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding values already present in the environment. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// BnovoConfigured reports whether the live property system can be reached.
func (c *Config) BnovoConfigured() bool {
	return strings.TrimSpace(c.BnovoBaseURL) != "" &&
		strings.TrimSpace(c.BnovoAccountID) != "" &&
		strings.TrimSpace(c.BnovoAPIKey) != ""
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
