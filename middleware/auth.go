package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"subscriptionOpsAPI/internal/identity"
)

type contextKey string

const IdentityKey contextKey = "identity"
const RequestIDKey contextKey = "requestID"

// TokenVerifier checks a bearer token and returns the caller.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*identity.Identity, error)
}

// FirebaseAuthMiddleware validates Firebase ID tokens and stores the caller
// in the request context
func FirebaseAuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respondWithError(w, http.StatusUnauthorized, "Authorization header missing")
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			if token == "" {
				respondWithError(w, http.StatusUnauthorized, "Token missing")
				return
			}

			id, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				slog.WarnContext(r.Context(), "token verification failed", "error", err, "request_id", GetRequestID(r.Context()))
				respondWithError(w, http.StatusForbidden, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only when the caller has one of the
// given roles. It must run after FirebaseAuthMiddleware.
func RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r.Context())
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Not authenticated")
				return
			}
			if !id.HasRole(roles...) {
				respondWithError(w, http.StatusForbidden, "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetIdentity extracts the verified caller from context
func GetIdentity(ctx context.Context) (*identity.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(*identity.Identity)
	return id, ok && id != nil
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": false, "error": message})
}
