package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Plan is a user's subscription tier. It bounds monthly usage for billing
// screens but is informational to the orchestrator.
type Plan string

// Plan tiers.
const (
	PlanFree Plan = "FREE"
	PlanPro  Plan = "PRO"
	PlanTeam Plan = "TEAM"
)

// Valid reports whether the plan is a known tier.
func (p Plan) Valid() bool {
	return p == PlanFree || p == PlanPro || p == PlanTeam
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// User owns workspaces and a prepaid credit balance.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
	Plan  Plan      `json:"plan"`
	// Credits is the live balance. Only the ledger changes it.
	Credits int64 `json:"credits"`
	// OpeningCredits is the balance the user was created with; the ledger
	// reconciles against it.
	OpeningCredits int64     `json:"opening_credits"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewUser creates a user with an opening credit balance.
// Returns an error if validation fails.
func NewUser(email string, plan Plan, openingCredits int64) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:             uuid.New(),
		Email:          strings.TrimSpace(email),
		Plan:           plan,
		Credits:        openingCredits,
		OpeningCredits: openingCredits,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks if the User has valid data.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrInvalidID
	}
	if !emailPattern.MatchString(u.Email) {
		return ErrInvalidEmail
	}
	if !u.Plan.Valid() {
		return ErrInvalidPlan
	}
	if u.Credits < 0 || u.OpeningCredits < 0 {
		return ErrNegativeCredits
	}
	return nil
}

// Workspace groups a user's tasks. Each workspace has exactly one owner.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewWorkspace creates a workspace owned by userID.
func NewWorkspace(userID uuid.UUID, name string) (*Workspace, error) {
	ws := &Workspace{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		CreatedAt: time.Now().UTC(),
	}
	if ws.UserID == uuid.Nil {
		return nil, ErrInvalidID
	}
	if ws.Name == "" {
		return nil, ErrEmptyContent
	}
	return ws, nil
}

// UserTarget formats an audit target for a user ID.
func UserTarget(id uuid.UUID) string {
	return "user:" + id.String()
}
