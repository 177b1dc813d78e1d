package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofrs/uuid"
)

// Role of the acting identity. Verification of credentials happens at the
// gateway; this service only consumes the result.
type Role string

const (
	RoleStudent    Role = "student"
	RoleStallOwner Role = "stall_owner"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleStallOwner || r == RoleAdmin
}

type Identity struct {
	UserID uuid.UUID
	Role   Role
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

type contextKey string

const identityContextKey contextKey = "identity"

var (
	ErrNoIdentity = errors.New("no identity in context")

	// ErrNotAllowed means the acting identity is neither the resource
	// owner nor the responsible stall owner nor an admin.
	ErrNotAllowed = errors.New("not allowed")
)

// Middleware reads the gateway-verified identity headers and stores the
// identity in the request context. Requests without a usable identity are
// rejected before they reach a handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.FromString(r.Header.Get("X-User-Id"))
		if err != nil {
			http.Error(w, "unauthorized: missing or invalid X-User-Id", http.StatusUnauthorized)
			return
		}

		role := Role(r.Header.Get("X-User-Role"))
		if !role.Valid() {
			http.Error(w, "unauthorized: missing or invalid X-User-Role", http.StatusUnauthorized)
			return
		}

		ident := Identity{UserID: userID, Role: role}
		ctx := context.WithValue(r.Context(), identityContextKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (Identity, error) {
	ident, ok := ctx.Value(identityContextKey).(Identity)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	return ident, nil
}

// WithIdentity is used by tests to build request contexts directly.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, ident)
}
