package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Practice-area catalog. Empty means the embedded default catalog.
	CatalogPath string

	// Session storage
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	SessionTTL    time.Duration
	SweepInterval time.Duration

	// Lead archive (optional)
	DatabaseURL string

	// Hosted language model
	GeminiAPIKey   string
	GeminiModelID  string
	LLMTimeout     time.Duration
	ExtractTimeout time.Duration

	// Location lookup
	ZipLookupBaseURL string
	ZipLookupTimeout time.Duration

	// Lead marketplace
	MarketplaceURL     string
	MarketplaceAPIKey  string
	MarketplaceTimeout time.Duration

	// SendGrid lead notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Consent disclosure injected into every lead as a config-sourced field.
	TCPAConsentText string

	CORSAllowedOrigins []string

	// Per-IP chat rate limiting; zero disables it.
	ChatRatePerSecond float64
	ChatBurst         int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		CatalogPath: getEnv("PRACTICE_AREA_CATALOG", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		SweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:  getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 10*time.Second),
		ExtractTimeout: getEnvAsDuration("EXTRACT_TIMEOUT", 15*time.Second),

		ZipLookupBaseURL: getEnv("ZIP_LOOKUP_BASE_URL", "https://api.zippopotam.us"),
		ZipLookupTimeout: getEnvAsDuration("ZIP_LOOKUP_TIMEOUT", 5*time.Second),

		MarketplaceURL:     getEnv("MARKETPLACE_URL", ""),
		MarketplaceAPIKey:  getEnv("MARKETPLACE_API_KEY", ""),
		MarketplaceTimeout: getEnvAsDuration("MARKETPLACE_TIMEOUT", 20*time.Second),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Attorney Directory"),

		TCPAConsentText: getEnv("TCPA_CONSENT_TEXT",
			"By submitting this form you consent to be contacted by an attorney about your inquiry."),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),

		ChatRatePerSecond: getEnvAsFloat("CHAT_RATE_PER_SEC", 5),
		ChatBurst:         getEnvAsInt("CHAT_BURST", 10),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
