package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrStore matches every error produced by a storage backend.
	ErrStore = errors.New("storage failure")
	// ErrNotFound indicates the referenced alert does not exist.
	ErrNotFound = errors.New("alert not found")
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

// Error wraps a backend failure with the operation that produced it.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStore) match any storage error.
func (e *Error) Is(target error) bool { return target == ErrStore }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
