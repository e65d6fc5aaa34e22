// Package store provides persistence for analysis reports.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a report does not exist.
	ErrNotFound = errors.New("report not found")

	// ErrDuplicateID is returned when a report ID is already stored.
	ErrDuplicateID = errors.New("report already exists")

	// ErrUnavailable is returned when the database cannot be opened or migrated.
	ErrUnavailable = errors.New("report database unavailable")

	// ErrInvalidData is returned when plans or diagnostics do not round-trip
	// through their JSON columns.
	ErrInvalidData = errors.New("invalid report data")

	// ErrTxFailed is returned when a transaction cannot begin, commit or roll back.
	ErrTxFailed = errors.New("transaction failed")
)

// StoreError wraps errors with additional context.
type StoreError struct {
	Op      string // Operation that failed (e.g., "CreateReport")
	Entity  string // Entity type (e.g., "report", "diagnostic")
	ID      string // Entity ID if applicable
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}
