package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string // empty = in-memory store
	JWTSecret   string
	LogLevel    string

	BMSAPIURL        string // empty = offline, no backend sync
	RemoteTimeout    time.Duration
	RemoteMaxRetries uint64

	CurrencyCode     string
	CurrencyExponent int32

	CORSOrigins []string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	timeout, err := time.ParseDuration(getEnv("REMOTE_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("REMOTE_TIMEOUT: %w", err)
	}
	retries, err := strconv.ParseUint(getEnv("REMOTE_MAX_RETRIES", "3"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("REMOTE_MAX_RETRIES: %w", err)
	}
	exponent, err := strconv.ParseInt(getEnv("CURRENCY_EXPONENT", "0"), 10, 32)
	if err != nil || exponent < 0 {
		return nil, fmt.Errorf("CURRENCY_EXPONENT must be a non-negative integer, got %q", os.Getenv("CURRENCY_EXPONENT"))
	}

	return &Config{
		Port:             getEnv("PORT", "8081"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		BMSAPIURL:        strings.TrimRight(os.Getenv("BMS_API_URL"), "/"),
		RemoteTimeout:    timeout,
		RemoteMaxRetries: retries,
		CurrencyCode:     getEnv("CURRENCY_CODE", "VND"),
		CurrencyExponent: int32(exponent),
		CORSOrigins:      splitList(getEnv("CORS_ORIGINS", "http://localhost:8081,http://localhost:19006")),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
