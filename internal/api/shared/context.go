package shared

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/service/auth"
)

// ContextKey is the type of request context keys set by the API layer.
type ContextKey string

// Context keys for request-scoped values.
const (
	// ClaimsContextKey holds the *auth.Claims of an authenticated caller.
	ClaimsContextKey ContextKey = "claims"

	// TraceIDKey holds the trace ID echoed in error responses.
	TraceIDKey ContextKey = "traceID"
)

// SetTraceID adds a trace ID to the context. An empty id is replaced by a
// fresh random one.
func SetTraceID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, TraceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithClaims returns a copy of ctx carrying the caller's claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// GetClaims returns the caller's claims, or false for unauthenticated
// requests.
func GetClaims(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*auth.Claims)
	return claims, ok && claims != nil
}
