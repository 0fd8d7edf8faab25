package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/taskforge/internal/audit"
	"github.com/phrazzld/taskforge/internal/domain"
	"github.com/phrazzld/taskforge/internal/ledger"
	"github.com/phrazzld/taskforge/internal/service/auth"
	"github.com/phrazzld/taskforge/internal/store"
	"github.com/phrazzld/taskforge/internal/task"
)

// ErrInvalidParam is returned when a path or query parameter is missing or
// malformed.
var ErrInvalidParam = errors.New("invalid request parameter")

// MapErrorToStatusCode maps internal errors to HTTP status codes so that
// internal error types never reach clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized

	// Authorization errors
	case errors.Is(err, task.ErrWorkspaceAccess):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, task.ErrNotFound),
		errors.Is(err, ledger.ErrUserNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// State conflicts the caller cannot fix by retrying
	case errors.Is(err, task.ErrInvalidState):
		return http.StatusBadRequest

	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, ErrInvalidParam),
		errors.Is(err, task.ErrInvalidKill),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, audit.ErrInvalidEntry),
		errors.Is(err, domain.ErrEmptyGoal),
		errors.Is(err, domain.ErrInvalidTaskType),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err that carries
// no internal detail.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, task.ErrWorkspaceAccess):
		return "Workspace not accessible"

	case errors.Is(err, task.ErrNotFound), errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, ledger.ErrUserNotFound), errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, task.ErrInvalidState):
		var terr *task.TransitionError
		if errors.As(err, &terr) {
			return fmt.Sprintf("Task is %s and cannot be %s", terr.From, pastTense(terr.Event))
		}
		return "Task is not in a valid state for this operation"

	case errors.Is(err, task.ErrInvalidKill):
		return "A kill requires a reason"

	case errors.Is(err, ledger.ErrInvalidAmount):
		return "Amount must be positive"

	case errors.Is(err, domain.ErrEmptyGoal):
		return "Goal is required"

	case errors.Is(err, domain.ErrInvalidTaskType):
		return "Invalid task type"

	case errors.Is(err, ErrInvalidParam):
		return "Invalid request parameter"

	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"

	case errors.Is(err, audit.ErrInvalidEntry),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return SanitizeValidationError(err)
		}
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError describes the first failed field of a validation
// error without echoing the submitted value.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}
	fe := verrs[0]
	return fmt.Sprintf("Invalid %s: %s", fe.Field(), getValidationTagMessage(fe.Tag()))
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid", "uuid4":
		return "must be a UUID"
	case "min", "gte", "gt":
		return "below minimum"
	case "max", "lte", "lt":
		return "above maximum"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

func pastTense(event task.Event) string {
	switch event {
	case task.EventKill:
		return "killed"
	default:
		return "changed by " + string(event)
	}
}
