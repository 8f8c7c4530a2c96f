package handlers

import (
	"context"

	"github.com/clipstream/backend/internal/assets"
	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/models"
	"github.com/clipstream/backend/internal/repositories"
)

// IdentityStore captures the persistence operations required by the account handlers.
type IdentityStore interface {
	Create(ctx context.Context, identity models.Identity) error
	FindByID(ctx context.Context, id string) (models.Identity, error)
	FindByUsername(ctx context.Context, username string) (models.Identity, error)
	FindByLogin(ctx context.Context, login string) (models.Identity, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Update(ctx context.Context, identity models.Identity) error
	SetAvatar(ctx context.Context, id string, ref models.AssetRef) error
	SetCover(ctx context.Context, id string, ref models.AssetRef) error
}

// VideoStore captures persistence for video publishing workflows.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	FindByIDWithOwner(ctx context.Context, id string) (models.VideoWithOwner, error)
	List(ctx context.Context, opts repositories.VideoListOptions) ([]models.VideoWithOwner, error)
	Update(ctx context.Context, video models.Video) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
}

// TokenAuthority mints, verifies, rotates, and revokes session tokens.
type TokenAuthority interface {
	IssueAndPersist(ctx context.Context, identityID string) (models.TokenPair, error)
	Verify(token string, kind auth.TokenKind) (auth.Claims, error)
	RefreshSession(ctx context.Context, presented string) (models.TokenPair, error)
	Revoke(ctx context.Context, identityID string) error
}

// AssetCoordinator pairs blob uploads with database writes so that neither
// side is left dangling when the other fails.
type AssetCoordinator interface {
	CreateWithAssets(ctx context.Context, inputs []assets.Input, persist func(refs []models.AssetRef) error) ([]models.AssetRef, error)
	ReplaceAsset(ctx context.Context, old models.AssetRef, in assets.Input, apply func(ref models.AssetRef) error) (models.AssetRef, error)
	DeleteWithAssets(ctx context.Context, refs []models.AssetRef, remove func() error) error
}
