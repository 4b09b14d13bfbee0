package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr != ":8000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.Timezone.String() != "America/New_York" {
		t.Fatalf("Timezone = %v", cfg.Timezone)
	}
	if cfg.HTTPRequestTimeout != 10*time.Second {
		t.Fatalf("HTTPRequestTimeout = %v", cfg.HTTPRequestTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 4 {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("KafkaBrokers = %v, want none", cfg.KafkaBrokers)
	}
	if cfg.KafkaTopic != "bookings.events" {
		t.Fatalf("KafkaTopic = %q", cfg.KafkaTopic)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BOOKINGDESK_HTTP_ADDR", ":9090")
	t.Setenv("BOOKINGDESK_BOOKING_TIMEZONE", "Europe/Berlin")
	t.Setenv("BOOKINGDESK_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("BOOKINGDESK_RATELIMIT_REQUESTS", "5")
	t.Setenv("BOOKINGDESK_RATELIMIT_WINDOW", "30s")
	t.Setenv("BOOKINGDESK_GRPC_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.Timezone.String() != "Europe/Berlin" {
		t.Fatalf("Timezone = %v", cfg.Timezone)
	}
	if strings.Join(cfg.KafkaBrokers, "|") != "kafka-1:9092|kafka-2:9092" {
		t.Fatalf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.RateLimitRequests != 5 || cfg.RateLimitWindow != 30*time.Second {
		t.Fatalf("rate limit = %d/%v", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if cfg.GRPCEnabled {
		t.Fatalf("GRPCEnabled = true, want false")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("timezone", func(t *testing.T) {
		t.Setenv("BOOKINGDESK_BOOKING_TIMEZONE", "Mars/Olympus")
		if _, err := Load(); err == nil {
			t.Fatalf("expected error for unknown timezone")
		}
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("BOOKINGDESK_SHUTDOWN_TIMEOUT", "soon")
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), "shutdown.timeout") {
			t.Fatalf("err = %v, want shutdown.timeout error", err)
		}
	})
}
