package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPattern is matched by every InvalidPatternError.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrStoreUnavailable is matched by every StoreUnavailableError.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// InvalidPatternError reports malformed pattern text.
type InvalidPatternError struct {
	Input  string
	Reason string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Input, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidPattern) hold.
func (e *InvalidPatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

func invalidPattern(input, format string, args ...any) error {
	return &InvalidPatternError{Input: input, Reason: fmt.Sprintf(format, args...)}
}

// StoreUnavailableError wraps a failure of the durable backend.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrStoreUnavailable) hold.
func (e *StoreUnavailableError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

// NewStoreUnavailableError wraps err unless it already is a StoreUnavailableError.
func NewStoreUnavailableError(op string, err error) error {
	if err == nil {
		return nil
	}
	var sue *StoreUnavailableError
	if errors.As(err, &sue) {
		return err
	}
	return &StoreUnavailableError{Op: op, Err: err}
}
