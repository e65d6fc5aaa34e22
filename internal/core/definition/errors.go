// Package definition parses YAML composition definitions into analysis
// input. This is part of the functional core: all functions are pure and
// take the source bytes rather than reading files.
package definition

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput = errors.New("definition is empty")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Schema errors
	ErrInvalidField    = errors.New("invalid field value")
	ErrUnknownKind     = errors.New("unknown diagnostic kind")
	ErrUnknownSeverity = errors.New("unknown severity")
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string // e.g., "bindings[2].constructors[0].params[1].type"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
