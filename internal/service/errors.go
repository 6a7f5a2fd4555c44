package service

import (
	"errors"
	"fmt"

	"github.com/raphaelgruber/mindbase/internal/db"
)

// Hard failures reported to callers. Use errors.Is to check.
var (
	// ErrNotFound means the item does not exist for the caller's owner.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput means the request was malformed or unsupported.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStoreUnavailable means the relational store could not serve the request.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrModelUnavailable means the completion model failed where an answer was required.
	ErrModelUnavailable = errors.New("model unavailable")
)

// StageError records which pipeline stage an error came from.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// storeErr maps store errors onto the service taxonomy.
func storeErr(op string, err error) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
