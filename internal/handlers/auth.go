package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/assets"
	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/logging"
	"github.com/clipstream/backend/internal/models"
)

// AuthHandler implements account registration and session endpoints.
type AuthHandler struct {
	Identities     IdentityStore
	Tokens         TokenAuthority
	Assets         AssetCoordinator
	Cookies        auth.CookieWriter
	LoginLimiter   RateLimiter
	MaxUploadBytes int64
	NowFunc        func() time.Time
}

type registerForm struct {
	FullName string `validate:"required,max=120"`
	Email    string `validate:"required,email"`
	Username string `validate:"required,min=3,max=30,alphanum"`
	Password string `validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User   models.Identity  `json:"user"`
	Tokens models.TokenPair `json:"tokens"`
}

// Register handles POST /api/v1/auth/register requests. The body is a
// multipart form carrying the profile fields plus avatar and coverImage files.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.LoginLimiter, r, "register") {
		respondError(ctx, w, fmt.Errorf("%w: too many registration attempts", apperrors.ErrValidation), "too many registration attempts, slow down")
		return
	}

	if err := parseMultipart(w, r, h.MaxUploadBytes); err != nil {
		respondError(ctx, w, err, "invalid registration form")
		return
	}

	form := registerForm{
		FullName: strings.TrimSpace(r.FormValue("fullname")),
		Email:    strings.TrimSpace(strings.ToLower(r.FormValue("email"))),
		Username: strings.TrimSpace(strings.ToLower(r.FormValue("username"))),
		Password: r.FormValue("password"),
	}
	if err := validateStruct(form); err != nil {
		respondError(ctx, w, err, "fullname, email, username, and password are required")
		return
	}

	// The duplicate check runs before any blob is uploaded so a taken
	// username never costs an upload-and-compensate round trip.
	taken, err := h.Identities.ExistsByUsernameOrEmail(ctx, form.Username, form.Email)
	if err != nil {
		respondError(ctx, w, fmt.Errorf("duplicate lookup: %w", err), "could not register account")
		return
	}
	if taken {
		respondError(ctx, w, fmt.Errorf("%w: username or email already registered", apperrors.ErrConflict), "username or email already registered")
		return
	}

	var closers []io.Closer
	defer func() { closeAll(closers) }()

	avatarIn, avatarFile, _, err := formFile(r, "avatar", "avatars", true)
	if err != nil {
		respondError(ctx, w, err, "avatar image is required")
		return
	}
	closers = append(closers, avatarFile)

	coverIn, coverFile, _, err := formFile(r, "coverImage", "covers", true)
	if err != nil {
		respondError(ctx, w, err, "cover image is required")
		return
	}
	closers = append(closers, coverFile)

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(ctx, w, fmt.Errorf("hash password: %w", err), "could not register account")
		return
	}

	now := h.now()
	identity := models.Identity{
		ID:        uuid.NewString(),
		Username:  form.Username,
		Email:     form.Email,
		FullName:  form.FullName,
		Password:  string(hash),
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = h.Assets.CreateWithAssets(ctx, []assets.Input{avatarIn, coverIn}, func(refs []models.AssetRef) error {
		identity.Avatar = refs[0]
		identity.Cover = refs[1]
		return h.Identities.Create(ctx, identity)
	})
	if err != nil {
		respondError(ctx, w, err, "could not register account")
		return
	}

	tokens, err := h.Tokens.IssueAndPersist(ctx, identity.ID)
	if err != nil {
		respondError(ctx, w, err, "account created but sign-in failed, please log in")
		return
	}
	h.Cookies.SetPair(w, tokens)

	logger.Info("account registered", "identityId", identity.ID, "username", identity.Username)
	respondData(ctx, w, http.StatusCreated, authResponse{User: identity, Tokens: tokens}, "account registered")
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if !allowRequest(h.LoginLimiter, r, "login") {
		respondError(ctx, w, fmt.Errorf("%w: too many login attempts", apperrors.ErrValidation), "too many login attempts, slow down")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, fmt.Errorf("%w: invalid request body", apperrors.ErrValidation), "invalid request body")
		return
	}

	login := strings.TrimSpace(strings.ToLower(req.Username))
	if login == "" {
		login = strings.TrimSpace(strings.ToLower(req.Email))
	}
	if login == "" || req.Password == "" {
		respondError(ctx, w, fmt.Errorf("%w: username or email and password are required", apperrors.ErrValidation), "username or email and password are required")
		return
	}

	identity, err := h.Identities.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondError(ctx, w, fmt.Errorf("%w: unknown account", apperrors.ErrUnauthorized), "invalid credentials")
			return
		}
		respondError(ctx, w, err, "could not log in")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(identity.Password), []byte(req.Password)); err != nil {
		respondError(ctx, w, fmt.Errorf("%w: password mismatch", apperrors.ErrUnauthorized), "invalid credentials")
		return
	}

	tokens, err := h.Tokens.IssueAndPersist(ctx, identity.ID)
	if err != nil {
		respondError(ctx, w, err, "could not create session")
		return
	}
	h.Cookies.SetPair(w, tokens)

	logger.Info("login succeeded", "identityId", identity.ID)
	respondData(ctx, w, http.StatusOK, authResponse{User: identity, Tokens: tokens}, "logged in")
}

// Refresh handles POST /api/v1/auth/refresh requests. The refresh token is
// read from the cookie or the Authorization header and rotated on success.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	presented := auth.TokenFromRequest(r, auth.KindRefresh)
	if presented == "" {
		respondError(ctx, w, fmt.Errorf("missing refresh token: %w", apperrors.ErrUnauthorized), "refresh token required")
		return
	}

	tokens, err := h.Tokens.RefreshSession(ctx, presented)
	if err != nil {
		respondError(ctx, w, err, "invalid or expired refresh token")
		return
	}
	h.Cookies.SetPair(w, tokens)

	respondData(ctx, w, http.StatusOK, tokens, "session refreshed")
}

// Logout handles POST /api/v1/auth/logout requests for authenticated sessions.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := sessionFrom(ctx)
	if err != nil {
		respondError(ctx, w, err, "authentication required")
		return
	}

	if err := h.Tokens.Revoke(ctx, session.IdentityID); err != nil {
		respondError(ctx, w, err, "could not log out")
		return
	}
	h.Cookies.ClearPair(w)

	logging.FromContext(ctx).Info("logout", "identityId", session.IdentityID)
	respondData(ctx, w, http.StatusOK, map[string]any{}, "logged out")
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
