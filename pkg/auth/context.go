package auth

import (
	"context"
	"errors"
)

// AnonymousUser is the user id recorded when auth is disabled.
const AnonymousUser = "anonymous"

// ErrNoIdentity is returned when a request reached a handler without
// passing through the auth middleware.
var ErrNoIdentity = errors.New("no identity in context")

// Identity is the authenticated caller as the pipeline sees it.
type Identity struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	RoleName string `json:"role"`
}

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns the identity stored by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequireIdentity is IdentityFromContext for callers that cannot proceed without one.
func RequireIdentity(ctx context.Context) (Identity, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}
