package middleware

import "context"

type contextKey struct{ name string }

var (
	userIDKey     = contextKey{"user_id"}
	externalIDKey = contextKey{"external_id"}
)

// WithIdentity returns a context carrying the authenticated user id and external subject id.
func WithIdentity(ctx context.Context, userID, externalID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, externalIDKey, externalID)
}

// UserID returns the authenticated user id and true if set.
func UserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok && v != ""
}

// ExternalID returns the authenticated external subject id and true if set.
func ExternalID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(externalIDKey).(string)
	return v, ok && v != ""
}
