package utils

import (
	"errors"
	"fmt"
)

// Kind partitions errors into the categories the transport layer switches on.
type Kind string

const (
	// KindValidation marks bad client input; never retried, surfaced verbatim.
	KindValidation Kind = "validation"
	// KindModel marks a missing or malformed inference artifact; fatal at startup.
	KindModel Kind = "model"
	// KindPersistence marks a failed history append or read.
	KindPersistence Kind = "persistence"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

// AppError wraps an error kind, operation, optional offending field, a
// human-facing message, and the underlying error.
type AppError struct {
	Kind  Kind
	Op    string
	Field string
	Msg   string
	Err   error
}

func (e *AppError) Error() string {
	prefix := e.Op
	if e.Field != "" {
		prefix = fmt.Sprintf("%s: field %s", e.Op, e.Field)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", prefix, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError reports a constraint violation on a named input field.
func NewValidationError(field, msg string) error {
	return &AppError{Kind: KindValidation, Op: "validate", Field: field, Msg: msg}
}

// NewModelError reports an inference artifact problem.
func NewModelError(op, msg string, err error) error {
	return &AppError{Kind: KindModel, Op: op, Msg: msg, Err: err}
}

// NewPersistenceError reports a history store failure.
func NewPersistenceError(op, msg string, err error) error {
	return &AppError{Kind: KindPersistence, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the error's kind, defaulting to KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// FieldOf returns the offending field name for validation errors, or "".
func FieldOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// DetailOf returns the human-readable message carried by the error.
func DetailOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
