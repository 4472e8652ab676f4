package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/HerbHall/pulsedeck/internal/server"
)

type claimsKey struct{}

// ClaimsFromContext returns the authenticated claims, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(claimsKey{}).(*Claims); ok {
		return c
	}
	return nil
}

// publicPrefixes are API paths served without a token. Browser EventSource
// and WebSocket clients cannot set an Authorization header.
var publicPrefixes = []string{
	"/api/v1/health",
	"/api/v1/stream/",
	"/api/v1/ws/",
}

// RequireAuth validates bearer tokens on /api/ routes. Operational
// endpoints (healthz, readyz, metrics, swagger) and the stream paths pass
// through.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") || isPublic(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				server.Unauthorized(w, "missing or invalid authorization header", r.URL.Path)
				return
			}
			claims, err := tokens.ValidateAccessToken(raw)
			if err != nil {
				server.Unauthorized(w, "invalid or expired access token", r.URL.Path)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isPublic(path string) bool {
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
