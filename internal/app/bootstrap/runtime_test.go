package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/config"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/notify"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

func TestBuildRedisClientDisabledWithoutAddr(t *testing.T) {
	cfg := &appconfig.Config{}
	if client := BuildRedisClient(context.Background(), cfg, nil, false); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientVerifyPing(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()
}

func TestBuildRedisClientVerifyUnreachableReturnsNil(t *testing.T) {
	cfg := &appconfig.Config{RedisAddr: "127.0.0.1:1"}

	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildTrackerPostgresRequiresPool(t *testing.T) {
	cfg := &appconfig.Config{JobsBackend: "postgres"}
	if _, err := BuildTracker(cfg, nil, nil); err == nil {
		t.Fatalf("expected error without a postgres pool")
	}
}

func TestBuildTrackerUnknownBackend(t *testing.T) {
	cfg := &appconfig.Config{JobsBackend: "etcd"}
	if _, err := BuildTracker(cfg, nil, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildEmailSenderFallsBackToStub(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "sendgrid"}

	sender := BuildEmailSender(cfg, aws.Config{}, logging.New("error"))
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected StubEmailSender, got %T", sender)
	}
}

func TestBuildSessionWithoutRedis(t *testing.T) {
	cfg := &appconfig.Config{
		GatewayBaseURL: "http://localhost:3000",
		SessionName:    "main-session",
	}

	session := BuildSession(cfg, nil, logging.New("error"))
	if session == nil {
		t.Fatalf("expected session")
	}
	if session.IsConnected() {
		t.Fatalf("new session must start disconnected")
	}
}
