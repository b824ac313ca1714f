package errors

import (
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes. Migration failures are the only class severe enough to block
// app startup; sync and purge failures surface as eventual-consistency delay.
const (
	ErrMigration ErrorCode = iota + 1000
	ErrPullApply
	ErrPurge
	ErrNotFound
)

// NewMigration wraps a schema upgrade failure. The database is still at its
// pre-migration version; callers must not continue on a partial schema.
func NewMigration(err error) *AppError {
	return &AppError{
		Code:    ErrMigration,
		Message: "schema migration failed",
		Err:     err,
	}
}

// NewPullApply wraps a failure to apply a pulled page locally. The pull token
// has not advanced; the page will be retried on the next cycle.
func NewPullApply(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrPullApply,
		Message: fmt.Sprintf("failed to apply pulled %s page", resource),
		Err:     err,
	}
}

// NewPurge wraps a purge pass failure; the pass rolled back and is safe to
// retry.
func NewPurge(pass string, err error) *AppError {
	return &AppError{
		Code:    ErrPurge,
		Message: fmt.Sprintf("%s purge pass failed", pass),
		Err:     err,
	}
}

func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}
