package config

import (
	"slices"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "JWT_SECRET", "LOG_LEVEL", "BMS_API_URL",
		"REMOTE_TIMEOUT", "REMOTE_MAX_RETRIES", "CURRENCY_CODE", "CURRENCY_EXPONENT", "CORS_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8081" || cfg.DatabaseURL != "" || cfg.BMSAPIURL != "" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RemoteTimeout != 10*time.Second || cfg.RemoteMaxRetries != 3 {
		t.Errorf("remote defaults: %s / %d", cfg.RemoteTimeout, cfg.RemoteMaxRetries)
	}
	if cfg.CurrencyCode != "VND" || cfg.CurrencyExponent != 0 {
		t.Errorf("currency defaults: %s / %d", cfg.CurrencyCode, cfg.CurrencyExponent)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("cors defaults: %v", cfg.CORSOrigins)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("BMS_API_URL", "https://bms.example.com/")
	t.Setenv("REMOTE_TIMEOUT", "2500ms")
	t.Setenv("REMOTE_MAX_RETRIES", "5")
	t.Setenv("CURRENCY_CODE", "USD")
	t.Setenv("CURRENCY_EXPONENT", "2")
	t.Setenv("CORS_ORIGINS", " https://a.example.com , ,https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("port: %s", cfg.Port)
	}
	if cfg.BMSAPIURL != "https://bms.example.com" {
		t.Errorf("trailing slash not trimmed: %s", cfg.BMSAPIURL)
	}
	if cfg.RemoteTimeout != 2500*time.Millisecond || cfg.RemoteMaxRetries != 5 {
		t.Errorf("remote: %s / %d", cfg.RemoteTimeout, cfg.RemoteMaxRetries)
	}
	if cfg.CurrencyCode != "USD" || cfg.CurrencyExponent != 2 {
		t.Errorf("currency: %s / %d", cfg.CurrencyCode, cfg.CurrencyExponent)
	}
	if !slices.Equal(cfg.CORSOrigins, []string{"https://a.example.com", "https://b.example.com"}) {
		t.Errorf("cors: %v", cfg.CORSOrigins)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"REMOTE_TIMEOUT", "soon"},
		{"REMOTE_MAX_RETRIES", "-1"},
		{"CURRENCY_EXPONENT", "-2"},
		{"CURRENCY_EXPONENT", "two"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}
