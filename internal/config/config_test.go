package config

import (
	"testing"
	"time"
)

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresWebhookSecret(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "production", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "callmarket", SSLMode: "require"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", JWTIssuer: "callmarket", JWTAudience: "api"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without WEBHOOK_SECRET")
	}
}

func TestValidate_LocalAppliesBillingDefaults(t *testing.T) {
	c := Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "callmarket"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Billing.PreviewSeconds != 30 {
		t.Fatalf("expected preview default 30, got %d", c.Billing.PreviewSeconds)
	}
	if c.Billing.TokenPriceUSDCents != 10 {
		t.Fatalf("expected token price default 10, got %d", c.Billing.TokenPriceUSDCents)
	}
	if c.Billing.MinWithdrawalTokens != 100 {
		t.Fatalf("expected min withdrawal default 100, got %d", c.Billing.MinWithdrawalTokens)
	}
	if c.Billing.AvailabilityWindow != 5*time.Minute {
		t.Fatalf("expected availability window default 5m, got %v", c.Billing.AvailabilityWindow)
	}
}

func TestValidate_NegativePreviewRejected(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "local", Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Name: "callmarket"},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Auth:    AuthConfig{JWTSecret: "secret"},
		Billing: BillingConfig{PreviewSeconds: -1},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for negative PREVIEW_SECONDS")
	}
}
