package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds everything a run needs, read once at startup and immutable
// afterwards.
type Config struct {
	// Alerting
	DropPercent float64 // minimum percentage drop that triggers an alert
	DropAmount  float64 // minimum absolute drop that triggers an alert

	// Scraping
	MaxRetries      int
	RequestTimeout  time.Duration
	RequestInterval time.Duration // minimum spacing between requests to one origin
	ScrapeInterval  time.Duration // scheduler tick

	// Storage
	DatabasePath string
	ProductsFile string

	// Telegram (optional)
	TelegramBotToken string
	TelegramChatID   int64

	// Email (optional)
	SMTPHost      string
	SMTPPort      int
	EmailSender   string
	EmailPassword string
	EmailReceiver string
}

// Load reads configuration from environment variables, applying the same
// defaults the tracker has always used: 5% or $10 drop, 3 retries, 30s
// request timeout, 12h interval.
func Load() (*Config, error) {
	cfg := &Config{
		DropPercent:      envFloat("PRICE_DROP_PERCENTAGE", 5),
		DropAmount:       envFloat("PRICE_DROP_AMOUNT", 10),
		MaxRetries:       envInt("MAX_RETRIES", 3),
		RequestTimeout:   time.Duration(envInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		RequestInterval:  time.Duration(envInt("REQUEST_INTERVAL_SECONDS", 2)) * time.Second,
		ScrapeInterval:   time.Duration(envInt("SCRAPE_INTERVAL_HOURS", 12)) * time.Hour,
		DatabasePath:     envString("DATABASE_PATH", "data/price_tracker.db"),
		ProductsFile:     envString("PRODUCTS_FILE", "products.yaml"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		SMTPHost:         envString("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:         envInt("SMTP_PORT", 465),
		EmailSender:      os.Getenv("EMAIL_SENDER"),
		EmailPassword:    os.Getenv("EMAIL_PASSWORD"),
		EmailReceiver:    os.Getenv("EMAIL_RECEIVER"),
	}

	if chatIDStr := os.Getenv("TELEGRAM_CHAT_ID"); chatIDStr != "" {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", chatIDStr, err)
		}
		cfg.TelegramChatID = chatID
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DropPercent < 0 || c.DropAmount < 0 {
		return fmt.Errorf("price drop thresholds must be non-negative")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.ScrapeInterval <= 0 {
		return fmt.Errorf("SCRAPE_INTERVAL_HOURS must be positive")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
