package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role grants a set of API operations to a token holder.
type Role string

// Roles.
const (
	// RoleUser may submit and inspect tasks in their own workspaces.
	RoleUser Role = "user"
	// RoleAdmin may operate the orchestrator: kill tasks, trigger cycles,
	// grant credits and read the audit log.
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Principal identifies who a token is issued to. Users are identified by
// UserID; administrators by Name, which becomes the actor of their audited
// actions.
type Principal struct {
	UserID uuid.UUID
	Name   string
	Role   Role
}

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for the principal.
	// Returns ErrInvalidPrincipal if the principal is incomplete for its role.
	GenerateToken(ctx context.Context, p Principal) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns the claims if the token is valid, or an error if validation
	// fails (expired, invalid signature, etc.).
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the custom claims structure for the JWT tokens.
// It extends standard JWT registered claims with application-specific fields.
type Claims struct {
	// UserID is the user the token was issued for; uuid.Nil for
	// administrators without a user account.
	UserID uuid.UUID `json:"uid,omitempty"`

	// Role is the role granted by the token.
	Role Role `json:"role,omitempty"`

	// Standard registered JWT claims
	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}

// IsAdmin reports whether the claims grant the admin role.
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}
