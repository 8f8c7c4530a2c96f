package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/clipstream/backend/internal/auth"
	"github.com/clipstream/backend/internal/models"
	"github.com/google/uuid"
)

func registerRequestBody(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	return multipartBody(t,
		map[string]string{
			"fullname": "Ada Lovelace",
			"email":    "ada@example.com",
			"username": "ada",
			"password": "correct-horse",
		},
		map[string]string{
			"avatar":     "ada.png",
			"coverImage": "banner.jpg",
		})
}

func seedAccount(t *testing.T, env *testEnv, username, email, password string) models.Identity {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	identity := models.Identity{
		ID:       uuid.NewString(),
		Username: username,
		Email:    email,
		FullName: "Seeded Account",
		Password: string(hash),
	}
	if err := env.identities.Create(context.Background(), identity); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	return identity
}

func loginAs(t *testing.T, env *testEnv, username, password string) (models.TokenPair, *httptest.ResponseRecorder) {
	t.Helper()

	payload, _ := json.Marshal(map[string]string{"username": username, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}

	env2 := decodeEnvelope(t, rec)
	var resp struct {
		Tokens models.TokenPair `json:"tokens"`
	}
	if err := json.Unmarshal(env2.Data, &resp); err != nil {
		t.Fatalf("decode login data: %v", err)
	}
	return resp.Tokens, rec
}

func TestRegisterCreatesAccountAndSetsCookies(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := registerRequestBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d body=%s", rec.Code, rec.Body.String())
	}

	envl := decodeEnvelope(t, rec)
	if envl.StatusCode != http.StatusCreated {
		t.Fatalf("envelope statusCode = %d", envl.StatusCode)
	}
	var resp struct {
		User models.Identity `json:"user"`
	}
	if err := json.Unmarshal(envl.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.User.Username != "ada" {
		t.Fatalf("unexpected username %q", resp.User.Username)
	}
	if resp.User.Avatar.URL == "" || resp.User.Cover.URL == "" {
		t.Fatalf("expected asset URLs, got avatar=%q cover=%q", resp.User.Avatar.URL, resp.User.Cover.URL)
	}
	if strings.Contains(rec.Body.String(), "correct-horse") {
		t.Fatal("response leaked the password")
	}

	access := findCookie(rec, auth.AccessCookieName)
	refresh := findCookie(rec, auth.RefreshCookieName)
	if access == nil || refresh == nil {
		t.Fatal("expected both token cookies to be set")
	}
	if !access.HttpOnly || access.SameSite != http.SameSiteStrictMode {
		t.Fatalf("access cookie transport attrs wrong: %+v", access)
	}

	stored, err := env.identities.FindByUsername(context.Background(), "ada")
	if err != nil {
		t.Fatalf("stored identity missing: %v", err)
	}
	if stored.RefreshToken != refresh.Value {
		t.Fatal("refresh slot does not match issued cookie")
	}
	if len(env.assets.uploaded) != 2 {
		t.Fatalf("expected 2 uploads got %v", env.assets.uploaded)
	}
}

func TestRegisterDuplicateRejectedBeforeUpload(t *testing.T) {
	env := newTestEnv(t)
	seedAccount(t, env, "ada", "ada@example.com", "whatever-pass")

	body, contentType := registerRequestBody(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d body=%s", rec.Code, rec.Body.String())
	}
	if envl := decodeEnvelope(t, rec); envl.ErrorKind != "Conflict" {
		t.Fatalf("errorKind = %q", envl.ErrorKind)
	}
	if len(env.assets.uploaded) != 0 {
		t.Fatalf("duplicate registration must not upload, got %v", env.assets.uploaded)
	}
}

func TestRegisterMissingFileIsValidationError(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t,
		map[string]string{
			"fullname": "Ada Lovelace",
			"email":    "ada@example.com",
			"username": "ada",
			"password": "correct-horse",
		},
		map[string]string{"avatar": "ada.png"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", body)
	req.Header.Set("Content-Type", contentType)

	rec := env.do(req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", rec.Code, rec.Body.String())
	}
	if envl := decodeEnvelope(t, rec); envl.ErrorKind != "ValidationError" {
		t.Fatalf("errorKind = %q", envl.ErrorKind)
	}
	if len(env.assets.deleted) != len(env.assets.uploaded) {
		t.Fatalf("partial uploads not cleaned: uploaded=%v deleted=%v", env.assets.uploaded, env.assets.deleted)
	}
}

func TestLoginWrongPasswordSetsNoCookies(t *testing.T) {
	env := newTestEnv(t)
	seedAccount(t, env, "ada", "ada@example.com", "correct-horse")

	payload, _ := json.Marshal(map[string]string{"username": "ada", "password": "wrong-horse"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))

	rec := env.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d body=%s", rec.Code, rec.Body.String())
	}
	if envl := decodeEnvelope(t, rec); envl.ErrorKind != "Unauthorized" {
		t.Fatalf("errorKind = %q", envl.ErrorKind)
	}
	if cookies := rec.Result().Cookies(); len(cookies) != 0 {
		t.Fatalf("expected no cookies on failed login, got %v", cookies)
	}
}

func TestLoginByEmail(t *testing.T) {
	env := newTestEnv(t)
	identity := seedAccount(t, env, "ada", "ada@example.com", "correct-horse")

	payload, _ := json.Marshal(map[string]string{"email": "Ada@Example.com", "password": "correct-horse"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))

	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}

	stored, err := env.identities.FindByID(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("find identity: %v", err)
	}
	if stored.RefreshToken == "" {
		t.Fatal("login did not persist a refresh token")
	}
}

func TestRefreshRotatesAndStaleTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	seedAccount(t, env, "ada", "ada@example.com", "correct-horse")
	tokens, _ := loginAs(t, env, "ada", "correct-horse")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: tokens.RefreshToken})

	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}
	if findCookie(rec, auth.RefreshCookieName) == nil {
		t.Fatal("refresh did not set a new refresh cookie")
	}

	// The first refresh consumed the slot, so replaying the original token
	// must be rejected.
	replay := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	replay.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: tokens.RefreshToken})

	rec = env.do(replay)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh: expected 401 got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestRefreshWithoutTokenRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestLogoutRevokesSessionAndClearsCookies(t *testing.T) {
	env := newTestEnv(t)
	identity := seedAccount(t, env, "ada", "ada@example.com", "correct-horse")
	tokens, _ := loginAs(t, env, "ada", "correct-horse")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: tokens.AccessToken})

	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: expected 200 got %d body=%s", rec.Code, rec.Body.String())
	}

	access := findCookie(rec, auth.AccessCookieName)
	if access == nil || access.MaxAge >= 0 {
		t.Fatalf("expected cleared access cookie, got %+v", access)
	}

	stored, err := env.identities.FindByID(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("find identity: %v", err)
	}
	if stored.RefreshToken != "" {
		t.Fatal("logout did not clear the refresh slot")
	}

	// The revoked refresh token no longer matches the slot.
	refreshReq := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	refreshReq.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: tokens.RefreshToken})
	if rec := env.do(refreshReq); rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked refresh: expected 401 got %d", rec.Code)
	}
}

func TestBearerHeaderFallback(t *testing.T) {
	env := newTestEnv(t)
	seedAccount(t, env, "ada", "ada@example.com", "correct-horse")
	tokens, _ := loginAs(t, env, "ada", "correct-horse")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	rec := env.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via bearer header got %d body=%s", rec.Code, rec.Body.String())
	}
}
