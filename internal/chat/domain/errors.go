package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classify chat errors so transports can map them
type ErrorKind string

const (
	// KindValidation missing or malformed input
	KindValidation ErrorKind = "validation"
	// KindNotFound conversation or message does not exist
	KindNotFound ErrorKind = "not_found"
	// KindAuthorization caller is not allowed to act
	KindAuthorization ErrorKind = "authorization"
	// KindConflict unique constraint violated
	KindConflict ErrorKind = "conflict"
	// KindTransient storage or broker I/O failure, retryable
	KindTransient ErrorKind = "transient"
)

// ChatError carries the kind plus the underlying cause
type ChatError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ChatError) Unwrap() error {
	return e.Err
}

// NewValidationError create validation error
func NewValidationError(format string, args ...interface{}) error {
	return &ChatError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFoundError create not found error
func NewNotFoundError(format string, args ...interface{}) error {
	return &ChatError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// NewAuthorizationError create authorization error
func NewAuthorizationError(format string, args ...interface{}) error {
	return &ChatError{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NewConflictError create conflict error
func NewConflictError(msg string, err error) error {
	return &ChatError{Kind: KindConflict, Message: msg, Err: err}
}

// NewTransientError wrap an I/O failure of op
func NewTransientError(op string, err error) error {
	return &ChatError{Kind: KindTransient, Message: op, Err: err}
}

// KindOf return the kind of err, empty when err is not a ChatError
func KindOf(err error) ErrorKind {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsValidation check err kind
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsNotFound check err kind
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsAuthorization check err kind
func IsAuthorization(err error) bool { return KindOf(err) == KindAuthorization }

// IsConflict check err kind
func IsConflict(err error) bool { return KindOf(err) == KindConflict }

// IsTransient check err kind
func IsTransient(err error) bool { return KindOf(err) == KindTransient }
