package core

import "github.com/pkg/errors"

// ErrorKind classifies domain errors so the transport layer can map them without knowing every error.
type ErrorKind int

const (
	KindInvalid ErrorKind = iota + 1
	KindForbidden
	KindNotFound
	KindConflict
)

// Error is a domain error carrying a stable code clients can switch on.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func NewError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func (err *Error) Error() string {
	return err.Message
}

// AsError returns the *Error at the root of err's cause chain, if any.
func AsError(err error) (*Error, bool) {
	e, ok := errors.Cause(err).(*Error)
	return e, ok
}

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
		return ""
	}
	return err.Err.Error()
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
