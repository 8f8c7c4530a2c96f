// Package auth implements the token authority: minting, verification, and
// rotation of paired access/refresh credentials, plus their cookie transport.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/models"
)

const (
	defaultAccessTTL  = time.Hour
	defaultRefreshTTL = 15 * 24 * time.Hour
)

// TokenKind selects which secret and lifetime apply to a token.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// Claims carried by both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	IdentityID string `json:"uid"`
}

// IdentityStore is the persistence surface the authority needs: identity
// lookup plus mutation of the single refresh-token slot.
type IdentityStore interface {
	FindByID(ctx context.Context, id string) (models.Identity, error)
	// SetRefreshToken overwrites the slot unconditionally.
	SetRefreshToken(ctx context.Context, id, token string, issuedAt time.Time) error
	// SwapRefreshToken replaces the slot only while it still holds old,
	// so a concurrent rotation is detected instead of silently winning.
	SwapRefreshToken(ctx context.Context, id, old, token string, issuedAt time.Time) error
	ClearRefreshToken(ctx context.Context, id string) error
}

// AuthorityConfig configures signing secrets and token lifetimes. Secrets for
// the two kinds must differ so an access token can never pass as a refresh
// token or vice versa.
type AuthorityConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Authority mints, verifies, and rotates access/refresh token pairs.
type Authority struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	identities IdentityStore

	nowFunc func() time.Time
}

// NewAuthority validates the signing configuration and constructs an
// Authority backed by the provided identity store.
func NewAuthority(cfg AuthorityConfig, identities IdentityStore) (*Authority, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets must be set")
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if identities == nil {
		return nil, errors.New("auth: identity store must not be nil")
	}

	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}

	return &Authority{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		identities:    identities,
		nowFunc:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// AccessTTL reports the configured access token lifetime.
func (a *Authority) AccessTTL() time.Duration { return a.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (a *Authority) RefreshTTL() time.Duration { return a.refreshTTL }

// MintPair signs a fresh access/refresh pair for the identity. No store side
// effect; failure here means signing-key misconfiguration.
func (a *Authority) MintPair(identityID string) (models.TokenPair, error) {
	if identityID == "" {
		return models.TokenPair{}, fmt.Errorf("mint pair: %w", apperrors.ErrValidation)
	}

	now := a.nowFunc().Truncate(time.Second)
	accessExpiresAt := now.Add(a.accessTTL)
	refreshExpiresAt := now.Add(a.refreshTTL)

	access, err := a.sign(identityID, now, accessExpiresAt, a.accessSecret)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := a.sign(identityID, now, refreshExpiresAt, a.refreshSecret)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return models.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExpiresAt,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// IssueAndPersist mints a pair and writes the refresh token into the
// identity's slot. This is a system update, not a user edit; callers must not
// set auth cookies when it fails.
func (a *Authority) IssueAndPersist(ctx context.Context, identityID string) (models.TokenPair, error) {
	pair, err := a.MintPair(identityID)
	if err != nil {
		return models.TokenPair{}, err
	}

	issuedAt := a.nowFunc()
	if err := a.identities.SetRefreshToken(ctx, identityID, pair.RefreshToken, issuedAt); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return models.TokenPair{}, fmt.Errorf("issue tokens for %s: %w", identityID, err)
		}
		return models.TokenPair{}, fmt.Errorf("persist refresh token: %w: %v", apperrors.ErrPersistence, err)
	}

	return pair, nil
}

// Verify checks signature and expiry against the secret for the given kind.
// Expired-but-well-signed tokens surface as ErrTokenExpired so callers can
// prompt a silent refresh instead of a re-login.
func (a *Authority) Verify(token string, kind TokenKind) (Claims, error) {
	if token == "" {
		return Claims{}, fmt.Errorf("verify %s token: empty: %w", kind, apperrors.ErrTokenInvalid)
	}

	secret, err := a.secretFor(kind)
	if err != nil {
		return Claims{}, err
	}

	claims := Claims{}
	_, err = jwt.ParseWithClaims(
		token,
		&claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.nowFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("verify %s token: %w", kind, apperrors.ErrTokenExpired)
		}
		return Claims{}, fmt.Errorf("verify %s token: %w: %v", kind, apperrors.ErrTokenInvalid, err)
	}

	if claims.IdentityID == "" {
		return Claims{}, fmt.Errorf("verify %s token: missing uid claim: %w", kind, apperrors.ErrTokenInvalid)
	}

	return claims, nil
}

// RefreshSession rotates the credential pair presented as a refresh token.
// The presented token must match the identity's stored slot: a token that was
// valid when signed but has since been rotated or revoked is rejected, and
// the slot swap is conditional on the old value so two racing refreshes
// cannot both succeed.
func (a *Authority) RefreshSession(ctx context.Context, presented string) (models.TokenPair, error) {
	claims, err := a.Verify(presented, KindRefresh)
	if err != nil {
		return models.TokenPair{}, err
	}

	identity, err := a.identities.FindByID(ctx, claims.IdentityID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return models.TokenPair{}, fmt.Errorf("refresh session: identity gone: %w", apperrors.ErrUnauthorized)
		}
		return models.TokenPair{}, fmt.Errorf("refresh session: %w: %v", apperrors.ErrPersistence, err)
	}

	if identity.RefreshToken == "" || identity.RefreshToken != presented {
		return models.TokenPair{}, fmt.Errorf("refresh session: token superseded: %w", apperrors.ErrUnauthorized)
	}

	pair, err := a.MintPair(identity.ID)
	if err != nil {
		return models.TokenPair{}, err
	}

	issuedAt := a.nowFunc()
	if err := a.identities.SwapRefreshToken(ctx, identity.ID, presented, pair.RefreshToken, issuedAt); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Slot changed between the read and the swap: a concurrent
			// refresh or logout won the race.
			return models.TokenPair{}, fmt.Errorf("refresh session: rotation lost: %w", apperrors.ErrUnauthorized)
		}
		return models.TokenPair{}, fmt.Errorf("rotate refresh token: %w: %v", apperrors.ErrPersistence, err)
	}

	return pair, nil
}

// Revoke clears the identity's refresh slot, invalidating any outstanding
// refresh token. Idempotent.
func (a *Authority) Revoke(ctx context.Context, identityID string) error {
	if err := a.identities.ClearRefreshToken(ctx, identityID); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w: %v", apperrors.ErrPersistence, err)
	}
	return nil
}

func (a *Authority) sign(identityID string, now, expiresAt time.Time, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		IdentityID: identityID,
	})
	return token.SignedString(secret)
}

func (a *Authority) secretFor(kind TokenKind) ([]byte, error) {
	switch kind {
	case KindAccess:
		return a.accessSecret, nil
	case KindRefresh:
		return a.refreshSecret, nil
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
}
