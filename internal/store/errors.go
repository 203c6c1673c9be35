package store

import (
	"fmt"

	"github.com/justestif/vibestream/internal/db"
)

// Sentinel errors shared with the db package so callers can use errors.Is
// regardless of the Store implementation.
var (
	ErrNotFound = db.ErrNotFound
	ErrConflict = db.ErrConflict
)

// ValidationError reports invalid caller input. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PersistenceError wraps a failure of the underlying storage.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
