package guild

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this package wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrPermission        = errors.New("permission denied")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflict          = errors.New("conflict")
	ErrStorage           = errors.New("storage failure")
)

// StorageError wraps a persistence failure. It is the only kind a caller
// may reasonably retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is reports ErrStorage as a match so errors.Is(err, ErrStorage) works
// without losing the underlying cause.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a *StorageError unless it already carries one of the
// domain kinds.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if isKind(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

func isKind(err error) bool {
	for _, k := range []error{
		ErrValidation, ErrNotFound, ErrPermission, ErrInvalidTransition,
		ErrInvalidState, ErrConflict, ErrStorage,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

func errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
