package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/clipstream/backend/internal/apperrors"
	"github.com/clipstream/backend/internal/auth"
)

// RequireSession verifies the access token on the request, loads the matching
// identity, and stores a session on the context. Requests without a valid,
// unexpired token are rejected before the wrapped handler runs.
func RequireSession(tokens TokenAuthority, identities IdentityStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := auth.TokenFromRequest(r, auth.KindAccess)
			if token == "" {
				respondError(ctx, w, fmt.Errorf("missing access token: %w", apperrors.ErrUnauthorized), "authentication required")
				return
			}

			claims, err := tokens.Verify(token, auth.KindAccess)
			if err != nil {
				respondError(ctx, w, err, "invalid or expired access token")
				return
			}

			identity, err := identities.FindByID(ctx, claims.IdentityID)
			if err != nil {
				respondError(ctx, w, fmt.Errorf("session identity lookup: %w", apperrors.ErrUnauthorized), "authentication required")
				return
			}

			ctx = auth.WithSession(ctx, auth.Session{IdentityID: identity.ID, Username: identity.Username})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionFrom extracts the authenticated session placed by RequireSession.
func sessionFrom(ctx context.Context) (auth.Session, error) {
	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		return auth.Session{}, fmt.Errorf("no session on request: %w", apperrors.ErrUnauthorized)
	}
	return session, nil
}
