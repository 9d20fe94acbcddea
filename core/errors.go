package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNotReady means the backend client is not available yet. Callers treat it as pending, not as a failure.
var ErrNotReady = errors.New("actor not available")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned when a referenced entity does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", err.Resource, err.ID)
}

// BackendError wraps a failed call to the backend. It is retryable by the caller.
type BackendError struct {
	Op  string
	Err error
}

func NewBackendError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Err: err}
}

func (err BackendError) Error() string {
	return "backend." + err.Op + ": " + err.Err.Error()
}

func (err BackendError) Unwrap() error {
	return err.Err
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsBackendFailure(err error) bool {
	_, ok := errors.Cause(err).(*BackendError)
	return ok
}

func IsNotReady(err error) bool {
	return errors.Cause(err) == ErrNotReady
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
