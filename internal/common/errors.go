// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Acquisition errors.
	ErrUnsupportedSource = errors.New("unsupported source format")
	ErrNoRows            = errors.New("document has no rows")
)

// ConfigError reports a rule or configuration problem tied to one document.
type ConfigError struct {
	Err      error
	Document string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rule document %s: %v", e.Document, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError wraps err as an invalid-configuration error for document.
// If err already matches ErrMissingConfig or ErrInvalidConfig it is kept as is.
func NewConfigError(document string, err error) error {
	if !errors.Is(err, ErrMissingConfig) && !errors.Is(err, ErrInvalidConfig) {
		err = fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &ConfigError{Document: document, Err: err}
}

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce) || errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrMissingConfig)
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
