package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
)

type contextKey string

const UserKeyHashKey contextKey = "userKeyHash"

// UserKeyMiddleware derives the caller identity from the X-User-Key header.
// The raw key never leaves this middleware; only its SHA-256 hex digest is
// carried through the request context, matching the key-hash identity the
// purchase backend keys its records on. Requests without the header pass
// through anonymously and fall back to the bridge or local identity.
func UserKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userKey := r.Header.Get("X-User-Key")
		if userKey != "" {
			sum := sha256.Sum256([]byte(userKey))
			ctx := context.WithValue(r.Context(), UserKeyHashKey, hex.EncodeToString(sum[:]))
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// GetUserKeyHash extracts the hashed user key from context
func GetUserKeyHash(ctx context.Context) (string, bool) {
	hash, ok := ctx.Value(UserKeyHashKey).(string)
	return hash, ok
}
