package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/logging"
	"github.com/clipstream/backend/internal/models"
)

// UserHandler implements profile management endpoints.
type UserHandler struct {
	Identities     IdentityStore
	Assets         AssetCoordinator
	MaxUploadBytes int64
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
}

type updateAccountRequest struct {
	FullName string `json:"fullname" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
}

// Me handles GET /api/v1/users/me requests.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := sessionFrom(ctx)
	if err != nil {
		respondError(ctx, w, err, "authentication required")
		return
	}

	identity, err := h.Identities.FindByID(ctx, session.IdentityID)
	if err != nil {
		respondError(ctx, w, err, "account not found")
		return
	}

	respondData(ctx, w, http.StatusOK, identity, "current account")
}

// Profile handles GET /api/v1/users/{username} requests.
func (h UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := strings.TrimSpace(strings.ToLower(r.PathValue("username")))
	if username == "" {
		respondError(ctx, w, fmt.Errorf("%w: username is required", apperrors.ErrValidation), "username is required")
		return
	}

	identity, err := h.Identities.FindByUsername(ctx, username)
	if err != nil {
		respondError(ctx, w, err, "channel not found")
		return
	}

	respondData(ctx, w, http.StatusOK, identity, "channel profile")
}

// ChangePassword handles POST /api/v1/users/me/password requests.
func (h UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := sessionFrom(ctx)
	if err != nil {
		respondError(ctx, w, err, "authentication required")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, fmt.Errorf("%w: invalid request body", apperrors.ErrValidation), "invalid request body")
		return
	}
	if err := validateStruct(req); err != nil {
		respondError(ctx, w, err, "oldPassword and newPassword are required")
		return
	}

	identity, err := h.Identities.FindByID(ctx, session.IdentityID)
	if err != nil {
		respondError(ctx, w, err, "account not found")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.Password), []byte(req.OldPassword)); err != nil {
		respondError(ctx, w, fmt.Errorf("%w: current password is incorrect", apperrors.ErrValidation), "current password is incorrect")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(ctx, w, fmt.Errorf("hash password: %w", err), "could not change password")
		return
	}

	identity.Password = string(hash)
	identity.UpdatedAt = time.Now().UTC()
	if err := h.Identities.Update(ctx, identity); err != nil {
		respondError(ctx, w, err, "could not change password")
		return
	}

	logging.FromContext(ctx).Info("password changed", "identityId", identity.ID)
	respondData(ctx, w, http.StatusOK, map[string]any{}, "password changed")
}

// UpdateAccount handles PATCH /api/v1/users/me requests.
func (h UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := sessionFrom(ctx)
	if err != nil {
		respondError(ctx, w, err, "authentication required")
		return
	}

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, fmt.Errorf("%w: invalid request body", apperrors.ErrValidation), "invalid request body")
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if err := validateStruct(req); err != nil {
		respondError(ctx, w, err, "fullname and email are required")
		return
	}

	identity, err := h.Identities.FindByID(ctx, session.IdentityID)
	if err != nil {
		respondError(ctx, w, err, "account not found")
		return
	}

	identity.FullName = req.FullName
	identity.Email = req.Email
	identity.UpdatedAt = time.Now().UTC()
	if err := h.Identities.Update(ctx, identity); err != nil {
		respondError(ctx, w, err, "could not update account")
		return
	}

	respondData(ctx, w, http.StatusOK, identity, "account updated")
}

// UpdateAvatar handles PUT /api/v1/users/me/avatar requests.
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceProfileImage(w, r, "avatar", "avatars",
		func(identity models.Identity) models.AssetRef { return identity.Avatar },
		h.Identities.SetAvatar)
}

// UpdateCover handles PUT /api/v1/users/me/cover requests.
func (h UserHandler) UpdateCover(w http.ResponseWriter, r *http.Request) {
	h.replaceProfileImage(w, r, "coverImage", "covers",
		func(identity models.Identity) models.AssetRef { return identity.Cover },
		h.Identities.SetCover)
}

// replaceProfileImage uploads the new image, points the identity record at
// it, and only then discards the previous blob.
func (h UserHandler) replaceProfileImage(
	w http.ResponseWriter,
	r *http.Request,
	field, kind string,
	current func(models.Identity) models.AssetRef,
	apply func(ctx context.Context, id string, ref models.AssetRef) error,
) {
	ctx := r.Context()

	session, err := sessionFrom(ctx)
	if err != nil {
		respondError(ctx, w, err, "authentication required")
		return
	}

	identity, err := h.Identities.FindByID(ctx, session.IdentityID)
	if err != nil {
		respondError(ctx, w, err, "account not found")
		return
	}

	if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
		respondError(ctx, w, err, "invalid upload form")
		return
	}

	in, file, _, err := formFile(r, field, kind, true)
	if err != nil {
		respondError(ctx, w, err, fmt.Sprintf("file %q is required", field))
		return
	}
	defer file.Close()

	ref, err := h.Assets.ReplaceAsset(ctx, current(identity), in, func(ref models.AssetRef) error {
		return apply(ctx, identity.ID, ref)
	})
	if err != nil {
		respondError(ctx, w, err, "could not update image")
		return
	}

	logging.FromContext(ctx).Info("profile image updated", "identityId", identity.ID, "field", field, "key", ref.Key)
	respondData(ctx, w, http.StatusOK, map[string]string{"url": ref.URL}, "image updated")
}
