// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext contains authenticated user information.
// AccessLevel follows the portal convention: 0 is full admin, higher values
// carry fewer privileges.
type UserContext struct {
	UserID      string
	Username    string
	AccessLevel int
	IsAdmin     bool
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

// GetUserID returns user ID from context or empty string.
func GetUserID(ctx context.Context) string {
	if u := GetUser(ctx); u != nil {
		return u.UserID
	}
	return ""
}

// HasAccessLevel reports whether the context user is at least as privileged
// as the given level.
func HasAccessLevel(ctx context.Context, level int) bool {
	u := GetUser(ctx)
	if u == nil {
		return false
	}
	return u.AccessLevel <= level
}
