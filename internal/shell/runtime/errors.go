package runtime

import (
	"errors"
	"fmt"

	"github.com/artpar/composer/internal/core/planner"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotComposable is returned when building a composition from a failed
	// analysis.
	ErrNotComposable = errors.New("composition has fatal diagnostics")

	// ErrUnknownRoot is returned when resolving a root that was not planned.
	ErrUnknownRoot = errors.New("unknown composition root")

	// ErrDisposed is returned when using a disposed composition or scope.
	ErrDisposed = errors.New("composition is disposed")

	// ErrMissingArgument is returned when an argument binding has no value.
	ErrMissingArgument = errors.New("argument not supplied")

	// ErrArgumentCount is returned when a Func is called with the wrong
	// number of arguments.
	ErrArgumentCount = errors.New("wrong number of arguments")

	// ErrReentrant is returned when a shared instance is requested again
	// while it is still being constructed.
	ErrReentrant = errors.New("shared instance requested during its own construction")

	// ErrInvalidPlan is returned when a plan references something it cannot.
	ErrInvalidPlan = errors.New("invalid plan")
)

// ResolveError wraps errors with the root and step that failed.
type ResolveError struct {
	Root     string
	Step     planner.StepID
	Contract string
	Err      error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve %s: step %d (%s): %v", e.Root, e.Step, e.Contract, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

// NewResolveError creates a new ResolveError.
func NewResolveError(root string, step *planner.Step, err error) *ResolveError {
	return &ResolveError{
		Root:     root,
		Step:     step.ID,
		Contract: step.Contract,
		Err:      err,
	}
}
