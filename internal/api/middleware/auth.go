package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/calctree/engine/internal/lineage"
)

type ownerKeyType string

const OwnerKey ownerKeyType = "owner"

// TokenVerifier turns a bearer token into the identity it was issued for.
type TokenVerifier interface {
	VerifyToken(token string) (lineage.Owner, error)
}

// Auth requires a valid Bearer token and adds the owner identity to the context.
func Auth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner, ok := authenticate(v, r)
			if !ok {
				writeUnauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// OptionalAuth attaches the identity when a valid token is present and lets
// anonymous requests through unchanged.
func OptionalAuth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if owner, ok := authenticate(v, r); ok {
				r = r.WithContext(WithOwner(r.Context(), owner))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(v TokenVerifier, r *http.Request) (lineage.Owner, bool) {
	ah := r.Header.Get("Authorization")
	if !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return lineage.Owner{}, false
	}
	tokenStr := strings.TrimSpace(ah[len("Bearer "):])
	owner, err := v.VerifyToken(tokenStr)
	if err != nil {
		return lineage.Owner{}, false
	}
	return owner, true
}

// WithOwner stores the authenticated owner in ctx.
func WithOwner(ctx context.Context, owner lineage.Owner) context.Context {
	return context.WithValue(ctx, OwnerKey, owner)
}

// GetOwner returns the authenticated owner, if any.
func GetOwner(ctx context.Context) (lineage.Owner, bool) {
	owner, ok := ctx.Value(OwnerKey).(lineage.Owner)
	return owner, ok
}
