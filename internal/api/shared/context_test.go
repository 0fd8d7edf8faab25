package shared

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforge/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGetTraceID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx), "Expected empty trace ID in original context")

	ctxWithTrace := SetTraceID(ctx, "")
	traceID := GetTraceID(ctxWithTrace)
	require.NotEmpty(t, traceID)
	_, err := uuid.Parse(traceID)
	assert.NoError(t, err, "Generated trace IDs should be UUIDs")

	assert.Empty(t, GetTraceID(ctx), "Expected original context to remain unchanged")
	assert.NotEqual(t, traceID, GetTraceID(SetTraceID(ctx, "")), "Expected fresh IDs per call")
}

func TestSetTraceIDKeepsGivenID(t *testing.T) {
	ctx := SetTraceID(context.Background(), "req-123")
	assert.Equal(t, "req-123", GetTraceID(ctx))
}

func TestGetTraceIDWithInvalidContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), TraceIDKey, 123) // Not a string
	assert.Empty(t, GetTraceID(ctx), "Expected empty trace ID when context has invalid type")
}

func TestClaimsContext(t *testing.T) {
	_, ok := GetClaims(context.Background())
	assert.False(t, ok)

	_, ok = GetClaims(WithClaims(context.Background(), nil))
	assert.False(t, ok, "nil claims must not authenticate")

	claims := &auth.Claims{UserID: uuid.New(), Role: auth.RoleUser}
	got, ok := GetClaims(WithClaims(context.Background(), claims))
	require.True(t, ok)
	assert.Same(t, claims, got)
}
