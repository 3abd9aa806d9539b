package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/yuzvak/checkout-service/internal/domain/user"
)

const (
	HeaderUserEmail   = "X-User-Email"
	HeaderUserSubject = "X-User-Sub"
)

type sessionKey struct{}

// NewSessionMiddleware reads what the auth proxy forwarded about the shopper.
// Every part is optional: a request without any of them is a guest.
func NewSessionMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := user.Session{
				Token:   bearerToken(r.Header.Get("Authorization")),
				Email:   strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
				Subject: strings.TrimSpace(r.Header.Get(HeaderUserSubject)),
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

func WithSession(ctx context.Context, session user.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

func SessionFrom(ctx context.Context) user.Session {
	session, _ := ctx.Value(sessionKey{}).(user.Session)
	return session
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
