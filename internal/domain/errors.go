package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is missing or malformed.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyGoal is returned when a task is submitted without a goal.
	ErrEmptyGoal = errors.New("task goal cannot be empty")

	// ErrInvalidTaskType is returned when a task type is not one of the known types.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrInvalidTaskStatus is returned when a task status is not one of the known statuses.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidTimestamps is returned when a task's lifecycle timestamps
	// disagree with its status.
	ErrInvalidTimestamps = errors.New("task timestamps inconsistent with status")

	// ErrInvalidResult is returned when a result payload does not match its kind.
	ErrInvalidResult = errors.New("invalid task result")

	// ErrInvalidEmail is returned when an email address is malformed.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrInvalidPlan is returned when a user's plan tier is unknown.
	ErrInvalidPlan = errors.New("invalid plan")

	// ErrNegativeCredits is returned when a credit balance would drop below zero.
	ErrNegativeCredits = errors.New("credits cannot be negative")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")
)
