package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the authenticated caller as supplied by the platform
// gateway. The booking platform owns authentication; by the time a
// request reaches this service the gateway has verified the session and
// injected these headers. The chat service only trusts them as a key.
type Identity struct {
	ID           string
	Name         string
	Role         string // "client" or "astrologer"
	ProfileImage string
}

// RequireIdentity rejects requests that arrive without an injected
// caller identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-User-Id")
		if id == "" {
			jsonError(w, http.StatusUnauthorized, "missing caller identity")
			return
		}

		ident := &Identity{
			ID:           id,
			Name:         r.Header.Get("X-User-Name"),
			Role:         r.Header.Get("X-User-Role"),
			ProfileImage: r.Header.Get("X-User-Image"),
		}
		if ident.Role == "" {
			ident.Role = "client"
		}

		ctx := context.WithValue(r.Context(), identityContextKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity retrieves the caller identity from the request context.
func GetIdentity(ctx context.Context) *Identity {
	ident, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok {
		return nil
	}
	return ident
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
