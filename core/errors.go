package core

import (
	"fmt"

	"github.com/pkg/errors"
)

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

// NotFoundError is returned when a looked up record does not exist (or belongs to another school).
type NotFoundError struct {
	msg string
}

func NewNotFoundError(format string, args ...interface{}) error {
	return &NotFoundError{msg: fmt.Sprintf(format, args...)}
}

func (err NotFoundError) Error() string { return err.msg }

// AuthorizationError is returned when the acting user may not perform the operation.
type AuthorizationError struct {
	msg string
}

func NewAuthorizationError(format string, args ...interface{}) error {
	return &AuthorizationError{msg: fmt.Sprintf(format, args...)}
}

func (err AuthorizationError) Error() string { return err.msg }

// ArgumentError reports a wrong argument or an invalid state transition.
type ArgumentError struct {
	msg string
}

func NewArgumentError(format string, args ...interface{}) error {
	return &ArgumentError{msg: fmt.Sprintf(format, args...)}
}

func (err ArgumentError) Error() string { return err.msg }

// AlreadyExistsError is returned when creating a record that breaks a uniqueness rule.
type AlreadyExistsError struct {
	msg string
}

func NewAlreadyExistsError(format string, args ...interface{}) error {
	return &AlreadyExistsError{msg: fmt.Sprintf(format, args...)}
}

func (err AlreadyExistsError) Error() string { return err.msg }

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}

func IsArgument(err error) bool {
	var target *ArgumentError
	return errors.As(err, &target)
}

func IsAlreadyExists(err error) bool {
	var target *AlreadyExistsError
	return errors.As(err, &target)
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
