// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// AuthContext holds the authenticated identity extracted from a request.
// It is populated by the HTTP middleware or gRPC interceptor and read by the
// directory and messaging services to authorize participant-only operations.
type AuthContext struct {
	UserID string   // ID of the authenticated user (token "sub" claim)
	Roles  []string // roles carried in the token, usually empty
}

// IsAdmin returns true if the user has admin or owner role.
func (a *AuthContext) IsAdmin() bool {
	for _, r := range a.Roles {
		if r == "admin" || r == "owner" {
			return true
		}
	}
	return false
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// WithUser is shorthand for WithAuth with a role-less identity.
func WithUser(ctx context.Context, userID string) context.Context {
	return WithAuth(ctx, &AuthContext{UserID: userID})
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	val := ctx.Value(authContextKey{})
	if val == nil {
		return nil
	}
	auth, ok := val.(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// UserID returns the authenticated user ID, or "" when the context carries none.
func UserID(ctx context.Context) string {
	if a := FromContext(ctx); a != nil {
		return a.UserID
	}
	return ""
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
