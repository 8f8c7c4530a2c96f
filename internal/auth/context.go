package auth

import "context"

// Session is the authenticated identity attached to a request after token
// verification. It travels as an explicit context value set by the session
// middleware, never as ambient global state.
type Session struct {
	IdentityID string
	Username   string
}

type sessionKey struct{}

// WithSession stores the session on the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext retrieves the session placed by the middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
