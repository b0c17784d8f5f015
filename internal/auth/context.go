package auth

import (
	"context"

	"nexusstore/internal/models"
)

type ctxKey string

const userKey ctxKey = "currentUser"

func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// FromContext returns the request's user, or nil for anonymous requests.
func FromContext(ctx context.Context) *models.User {
	if u, ok := ctx.Value(userKey).(*models.User); ok {
		return u
	}
	return nil
}

// UserID returns the current user's id or "".
func UserID(ctx context.Context) string {
	if u := FromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}
