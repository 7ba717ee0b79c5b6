// Package userctx carries authenticated user through request context
package userctx

import (
	"context"

	"github.com/nkiryanov/skillexa/internal/models"
)

type userKey struct{}

func New(ctx context.Context, u models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// FromContext returns user put by auth middleware. ok is false for not authenticated request
func FromContext(ctx context.Context) (u models.User, ok bool) {
	u, ok = ctx.Value(userKey{}).(models.User)
	return u, ok
}
