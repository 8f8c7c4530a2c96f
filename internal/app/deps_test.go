package app

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clipstream/backend/internal/config"
)

type fakePool struct{}

func (fakePool) Acquire(context.Context) (*pgxpool.Conn, error) {
	return nil, errors.New("not implemented")
}

func (fakePool) Close() {}

func TestBuildDependencies(t *testing.T) {
	cfg := config.Config{
		Environment: config.EnvDevelopment,
		Tokens: config.TokenConfig{
			AccessSecret:  "test-access-secret-test-access-secret",
			RefreshSecret: "test-refresh-secret-test-refresh-secret",
			AccessTTL:     time.Hour,
			RefreshTTL:    15 * 24 * time.Hour,
		},
		ObjectStore:    config.ObjectStoreConfig{Bucket: "test-bucket", Endpoint: "http://localhost:9000", Region: "us-east-1"},
		MaxUploadBytes: 1 << 20,
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	deps, err := buildDependencies(context.Background(), fakePool{}, cfg, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if deps.Identities == nil {
		t.Fatal("expected identity repository to be configured")
	}
	if deps.Videos == nil {
		t.Fatal("expected video repository to be configured")
	}
	if deps.Tokens == nil {
		t.Fatal("expected token authority to be configured")
	}
	if deps.Assets == nil {
		t.Fatal("expected asset coordinator to be configured")
	}
	if deps.LoginLimiter == nil {
		t.Fatal("expected login rate limiter to be configured")
	}
	if deps.Cookies.Secure {
		t.Fatal("development cookies must not be marked secure")
	}
	if deps.MaxUploadBytes != 1<<20 {
		t.Fatalf("maxUploadBytes = %d", deps.MaxUploadBytes)
	}
}

func TestBuildDependenciesRejectsBadTokenConfig(t *testing.T) {
	cfg := config.Config{
		Tokens:      config.TokenConfig{AccessSecret: "same-secret", RefreshSecret: "same-secret"},
		ObjectStore: config.ObjectStoreConfig{Bucket: "test-bucket", Region: "us-east-1"},
	}

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	if _, err := buildDependencies(context.Background(), fakePool{}, cfg, slog.Default()); err == nil {
		t.Fatal("expected error for identical token secrets")
	}
}
