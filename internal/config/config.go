package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the configuration for the application.
type Config struct {
	DatabasePath string
	ArchivePath  string
	Port         string
	LogLevel     string
	LogFormat    string
	Location     *time.Location
	PublicURL    string

	// Share links
	ShareTokenSecret string
	ShareTokenTTL    time.Duration

	MetricsRetentionDays int

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64

	// Gemini Config (optional; narratives fall back to a plain summary)
	GeminiAPIKey string
	GeminiModel  string
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	shareSecret := os.Getenv("SHARE_TOKEN_SECRET")
	if shareSecret == "" {
		return nil, fmt.Errorf("SHARE_TOKEN_SECRET environment variable not set")
	}

	location := time.UTC
	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
		}
		location = loc
	}

	shareTTL := 7 * 24 * time.Hour
	if raw := os.Getenv("SHARE_TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid SHARE_TOKEN_TTL %q", raw)
		}
		shareTTL = ttl
	}

	retention := 30
	if raw := os.Getenv("METRICS_RETENTION_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("invalid METRICS_RETENTION_DAYS %q", raw)
		}
		retention = days
	}

	logFormat := getEnv("LOG_FORMAT", "json")
	if logFormat != "json" && logFormat != "console" {
		return nil, fmt.Errorf("invalid LOG_FORMAT %q: expected json or console", logFormat)
	}

	// Telegram Config (optional; the bot is disabled without a token)
	allowedIDs, err := parseIDList(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	var adminID int64
	if raw := os.Getenv("ADMIN_TELEGRAM_ID"); raw != "" {
		adminID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID %q", raw)
		}
	}

	return &Config{
		DatabasePath:           getEnv("DATABASE_PATH", "data/cycle.db"),
		ArchivePath:            getEnv("ARCHIVE_PATH", "data/archive"),
		Port:                   getEnv("PORT", "8080"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              logFormat,
		Location:               location,
		PublicURL:              strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		ShareTokenSecret:       shareSecret,
		ShareTokenTTL:          shareTTL,
		MetricsRetentionDays:   retention,
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowedIDs,
		AdminTelegramID:        adminID,
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
	}, nil
}

// TelegramEnabled reports whether the bot has enough configuration to start.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramWebhookURL != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a user id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
