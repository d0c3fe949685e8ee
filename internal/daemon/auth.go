package daemon

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"shortcast/internal/config"
	"shortcast/internal/services"
)

const (
	apiKeyHeader    = "X-API-Key"
	requestIDHeader = "X-Request-ID"
)

// credentialFrom extracts the API key from X-API-Key or an Authorization
// bearer token.
func credentialFrom(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// authMiddleware resolves the request credential to an owner and stores it in
// the request context. Unknown or missing keys are rejected with 401.
func authMiddleware(cfg *config.Config, s *apiServer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, ok := cfg.OwnerForKey(credentialFrom(r))
			if !ok {
				s.writeError(w, http.StatusUnauthorized, "missing or invalid API key")
				return
			}
			next.ServeHTTP(w, r.WithContext(services.WithOwner(r.Context(), owner)))
		})
	}
}

// requestIDMiddleware tags every request with a correlation id, reusing the
// caller's X-Request-ID when present.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func ownerOf(r *http.Request) string {
	owner, _ := services.OwnerFromContext(r.Context())
	return owner
}
