package ledger

import "errors"

var (
	// ErrInsufficientCredits is returned when a debit exceeds the balance.
	// Nothing is written in that case.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidAmount is returned for a debit or grant of zero or less.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrUserNotFound is returned when the user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyCharged is returned when a debit names a task that already
	// has a ledger entry.
	ErrAlreadyCharged = errors.New("task already charged")
)
