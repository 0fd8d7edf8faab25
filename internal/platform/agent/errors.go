package agent

import "errors"

var (
	// ErrInvalidConfig is returned when the executor cannot be built from
	// the configuration.
	ErrInvalidConfig = errors.New("invalid agent configuration")

	// ErrInvalidResponse is returned when the model's answer is empty or is
	// not the JSON document that was asked for.
	ErrInvalidResponse = errors.New("invalid model response")

	// ErrContentBlocked is returned when the model refuses on safety grounds.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrTransientFailure is returned when every attempt failed with a
	// retryable error.
	ErrTransientFailure = errors.New("model call failed after retries")
)
