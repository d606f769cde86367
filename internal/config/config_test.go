package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("REMINDER_RETRY_MAX_ATTEMPTS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.RetryMaxAttempts != 3 {
		t.Fatalf("expected 3 retry attempts by default, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryBaseDelay != 2*time.Second {
		t.Fatalf("expected 2s retry base delay, got %s", cfg.RetryBaseDelay)
	}
	if cfg.SchedulerInterval != time.Hour {
		t.Fatalf("expected hourly scheduler interval, got %s", cfg.SchedulerInterval)
	}
	if cfg.SendTimeout != 30*time.Second {
		t.Fatalf("expected 30s send timeout, got %s", cfg.SendTimeout)
	}
	if cfg.ReconnectDelay != 5*time.Second {
		t.Fatalf("expected 5s reconnect delay, got %s", cfg.ReconnectDelay)
	}
	if cfg.AuthFailureReconnectDelay != 10*time.Second {
		t.Fatalf("expected 10s auth reconnect delay, got %s", cfg.AuthFailureReconnectDelay)
	}
	if cfg.CountryCode != "55" {
		t.Fatalf("expected country code 55, got %s", cfg.CountryCode)
	}
	if cfg.JobsBackend != "postgres" {
		t.Fatalf("expected postgres jobs backend, got %s", cfg.JobsBackend)
	}
	if cfg.EmailFromName != "Click Saúde Agendamentos" {
		t.Fatalf("expected default email from-name, got %s", cfg.EmailFromName)
	}
}

func TestLoadEmailFromNameOverride(t *testing.T) {
	t.Setenv("EMAIL_FROM_NAME", "Clínica Central")
	cfg := Load()
	if cfg.EmailFromName != "Clínica Central" {
		t.Fatalf("expected overridden email from-name, got %s", cfg.EmailFromName)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("REMINDER_RETRY_BASE_DELAY", "500ms")
	t.Setenv("WHATSAPP_GATEWAY_URL", "http://gateway:3100")
	t.Setenv("JOBS_BACKEND", "Dynamo")
	t.Setenv("SCHEDULER_INTERVAL", "15m")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if !cfg.UseMemoryQueue {
		t.Fatal("expected memory queue enabled")
	}
	if cfg.WorkerCount != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.WorkerCount)
	}
	if cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Fatalf("expected 500ms base delay, got %s", cfg.RetryBaseDelay)
	}
	if cfg.GatewayBaseURL != "http://gateway:3100" {
		t.Fatalf("expected gateway override, got %s", cfg.GatewayBaseURL)
	}
	if cfg.JobsBackend != "dynamo" {
		t.Fatalf("expected normalized jobs backend, got %s", cfg.JobsBackend)
	}
	if cfg.SchedulerInterval != 15*time.Minute {
		t.Fatalf("expected 15m scheduler interval, got %s", cfg.SchedulerInterval)
	}
}
