// Package actor carries the acting user through a context so that the
// persistence layer can stamp audit rows without a dependency on HTTP.
package actor

import "context"

type key struct{}

// System is recorded for changes made without a user, such as seeds and
// scheduled jobs.
const System = ""

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, key{}, userID)
}

// UserID returns the acting user or System.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(key{}).(string); ok {
		return id
	}
	return System
}
