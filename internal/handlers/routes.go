package handlers

import (
	"net/http"

	"github.com/clipstream/backend/internal/auth"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Identities     IdentityStore
	Videos         VideoStore
	Tokens         TokenAuthority
	Assets         AssetCoordinator
	Cookies        auth.CookieWriter
	LoginLimiter   RateLimiter
	MaxUploadBytes int64
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	accounts := AuthHandler{
		Identities:     deps.Identities,
		Tokens:         deps.Tokens,
		Assets:         deps.Assets,
		Cookies:        deps.Cookies,
		LoginLimiter:   deps.LoginLimiter,
		MaxUploadBytes: deps.MaxUploadBytes,
	}
	users := UserHandler{Identities: deps.Identities, Assets: deps.Assets, MaxUploadBytes: deps.MaxUploadBytes}
	videos := VideoHandler{Videos: deps.Videos, Assets: deps.Assets, MaxUploadBytes: deps.MaxUploadBytes}

	authed := RequireSession(deps.Tokens, deps.Identities)
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.HandleFunc("POST /api/v1/auth/register", accounts.Register)
	mux.HandleFunc("POST /api/v1/auth/login", accounts.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", accounts.Refresh)
	mux.Handle("POST /api/v1/auth/logout", protect(accounts.Logout))

	mux.Handle("GET /api/v1/users/me", protect(users.Me))
	mux.Handle("PATCH /api/v1/users/me", protect(users.UpdateAccount))
	mux.Handle("POST /api/v1/users/me/password", protect(users.ChangePassword))
	mux.Handle("PUT /api/v1/users/me/avatar", protect(users.UpdateAvatar))
	mux.Handle("PUT /api/v1/users/me/cover", protect(users.UpdateCover))
	mux.Handle("GET /api/v1/users/{username}", protect(users.Profile))

	mux.Handle("POST /api/v1/videos", protect(videos.Publish))
	mux.Handle("GET /api/v1/videos", protect(videos.List))
	mux.Handle("GET /api/v1/videos/{id}", protect(videos.Get))
	mux.Handle("PATCH /api/v1/videos/{id}", protect(videos.Update))
	mux.Handle("DELETE /api/v1/videos/{id}", protect(videos.Delete))
	mux.Handle("PATCH /api/v1/videos/{id}/publish", protect(videos.TogglePublish))
}
