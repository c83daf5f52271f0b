package main

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config carries everything read from the environment at startup. A .env
// file in the working directory is honored when present.
type Config struct {
	Port                string
	RateRefreshInterval time.Duration
	LoanMarginPercent   decimal.Decimal

	// Bounds for the simulated card purchase amount, in the randomly
	// chosen payment currency.
	CardPaymentMin decimal.Decimal
	CardPaymentMax decimal.Decimal

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func LoadConfig() Config {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	return Config{
		Port:                getEnv("PORT", "8080"),
		RateRefreshInterval: getDuration("RATE_REFRESH_INTERVAL", time.Hour),
		LoanMarginPercent:   getDecimal("LOAN_MARGIN_PERCENT", decimal.NewFromInt(5)),
		CardPaymentMin:      getDecimal("CARD_PAYMENT_MIN", decimal.NewFromInt(1)),
		CardPaymentMax:      getDecimal("CARD_PAYMENT_MAX", decimal.NewFromInt(100)),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getInt("SMTP_PORT", 587),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:            getEnv("SMTP_FROM", "clearbank@example.com"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
	}
	return fallback
}
