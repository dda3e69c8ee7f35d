package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/JewelreyBoxAI/sentient-agent-factory/internal/auth"
)

type contextKey string

const identityKey contextKey = "identity"

// requireAuth resolves the bearer token (Authorization header, or the
// token query parameter for websocket clients) to an identity.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, "missing_token", "authorization required")
			return
		}
		id, err := s.verifier.Verify(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid_token", "token rejected")
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityKey).(auth.Identity)
	return id
}
