package repositories

import (
	"context"
	"time"

	"github.com/clipstream/backend/internal/models"
)

// IdentityRepository defines the data access contract for identities,
// including the refresh-token slot consumed by the token authority.
type IdentityRepository interface {
	Create(ctx context.Context, identity models.Identity) error
	FindByID(ctx context.Context, id string) (models.Identity, error)
	FindByUsername(ctx context.Context, username string) (models.Identity, error)
	// FindByLogin matches the value against username or email.
	FindByLogin(ctx context.Context, login string) (models.Identity, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	// Update persists the user-editable fields (fullname, email, password hash).
	Update(ctx context.Context, identity models.Identity) error
	SetAvatar(ctx context.Context, id string, ref models.AssetRef) error
	SetCover(ctx context.Context, id string, ref models.AssetRef) error

	SetRefreshToken(ctx context.Context, id, token string, issuedAt time.Time) error
	SwapRefreshToken(ctx context.Context, id, old, token string, issuedAt time.Time) error
	ClearRefreshToken(ctx context.Context, id string) error
}
