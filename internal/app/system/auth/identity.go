// Package auth provides the identity collaborator used by every
// component that needs to know who is calling, plus the HTTP pieces
// (tokens, cookie sessions, middleware) that establish that identity.
package auth

import (
	"context"

	"github.com/dalemusser/bandhub/internal/domain/errs"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Authenticator answers "who is the current user?".
type Authenticator interface {
	CurrentUser(ctx context.Context) (Identity, error)
}

type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, false
	}
	return id, true
}

// ContextAuthenticator reads the identity placed on the request context
// by the middleware. It is the Authenticator used server side.
type ContextAuthenticator struct{}

func (ContextAuthenticator) CurrentUser(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, errs.ErrUnauthenticated
	}
	return id, nil
}
