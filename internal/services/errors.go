package services

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrDuplicateEmail is returned when an email is already used by another account.
	ErrDuplicateEmail = errors.New("email already in use")

	// ErrInvalidCredentials is the single failure for any rejected login. It
	// never says whether the email exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for unknown, revoked or expired bearer tokens.
	ErrInvalidToken = errors.New("invalid token")

	ErrAlreadyVerified          = errors.New("email already verified")
	ErrInvalidVerificationToken = errors.New("invalid verification token")
)

// ValidationError carries field-level messages keyed by field name.
type ValidationError struct {
	Fields map[string][]string
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

// Add appends a message for field.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string][]string{}
	}
	e.Fields[field] = append(e.Fields[field], message)
}

// Empty reports whether no field failed.
func (e *ValidationError) Empty() bool {
	return e == nil || len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	if e.Empty() {
		return "validation failed"
	}
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// errOrNil avoids returning a typed nil inside an error interface.
func (e *ValidationError) errOrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}
