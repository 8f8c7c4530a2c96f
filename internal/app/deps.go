package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipstream/backend/internal/assets"
	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/config"
	"github.com/clipstream/backend/internal/db"
	"github.com/clipstream/backend/internal/handlers"
	"github.com/clipstream/backend/internal/middleware"
	"github.com/clipstream/backend/internal/repositories"
	"github.com/clipstream/backend/internal/storage"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, error) {
	store, err := storage.NewS3Store(ctx, cfg.ObjectStore)
	if err != nil {
		return handlers.Dependencies{}, fmt.Errorf("init object store: %w", err)
	}

	identities := repositories.NewPostgresIdentityRepository(pool)
	videos := repositories.NewPostgresVideoRepository(pool)

	authority, err := auth.NewAuthority(auth.AuthorityConfig{
		AccessSecret:  cfg.Tokens.AccessSecret,
		RefreshSecret: cfg.Tokens.RefreshSecret,
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
	}, identities)
	if err != nil {
		return handlers.Dependencies{}, fmt.Errorf("init token authority: %w", err)
	}

	return handlers.Dependencies{
		Identities:     identities,
		Videos:         videos,
		Tokens:         authority,
		Assets:         assets.NewCoordinator(store, logger),
		Cookies:        auth.CookieWriter{Secure: cfg.Production()},
		LoginLimiter:   middleware.NewIPRateLimiter(10, time.Minute, 5, 10*time.Minute),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, nil
}
