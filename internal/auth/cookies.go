package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/clipstream/backend/internal/models"
)

// Cookie names under which the token pair travels.
const (
	AccessCookieName  = "accessToken"
	RefreshCookieName = "refreshToken"
)

// cookieAttrs is the fixed transport policy per token kind. HttpOnly and
// SameSite=Strict are unconditional; Secure depends on the environment.
type cookieAttrs struct {
	name   string
	maxAge time.Duration
}

var transportPolicy = map[TokenKind]cookieAttrs{
	KindAccess:  {name: AccessCookieName, maxAge: defaultAccessTTL},
	KindRefresh: {name: RefreshCookieName, maxAge: defaultRefreshTTL},
}

// CookieWriter applies the transport policy when delivering or clearing the
// token pair on responses.
type CookieWriter struct {
	// Secure marks cookies HTTPS-only; disabled only in local development.
	Secure bool
}

// SetPair writes both token cookies with their policy attributes.
func (c CookieWriter) SetPair(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, c.cookie(KindAccess, pair.AccessToken, transportPolicy[KindAccess].maxAge))
	http.SetCookie(w, c.cookie(KindRefresh, pair.RefreshToken, transportPolicy[KindRefresh].maxAge))
}

// ClearPair expires both token cookies.
func (c CookieWriter) ClearPair(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(KindAccess, "", 0))
	http.SetCookie(w, c.cookie(KindRefresh, "", 0))
}

func (c CookieWriter) cookie(kind TokenKind, value string, maxAge time.Duration) *http.Cookie {
	attrs := transportPolicy[kind]
	cookie := &http.Cookie{
		Name:     attrs.name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   c.Secure,
	}
	if value == "" {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(maxAge / time.Second)
	}
	return cookie
}

// TokenFromRequest extracts a token of the given kind from its cookie, falling
// back to an Authorization bearer header.
func TokenFromRequest(r *http.Request, kind TokenKind) string {
	if cookie, err := r.Cookie(transportPolicy[kind].name); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
