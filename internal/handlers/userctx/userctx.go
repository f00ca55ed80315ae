package userctx

import (
	"context"

	"github.com/mkalinina/marketauth/internal/models"
)

type ctxKey struct{}

// NewContext returns a context carrying the authenticated user
func NewContext(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// FromContext extracts the authenticated user set by the auth middleware
func FromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	return user, ok
}
