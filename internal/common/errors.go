// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds used across the risk and chat pipelines.
var (
	// ErrDataNotFound means no transactions or profile exist for the requested key.
	ErrDataNotFound = errors.New("data not found")
	// ErrProvider covers network, auth and status failures from an LLM provider.
	ErrProvider = errors.New("provider error")
	// ErrParse covers malformed provider output and corrupt persisted data.
	ErrParse = errors.New("parse error")
	// ErrConfig marks a component that cannot run because it is misconfigured.
	ErrConfig = errors.New("configuration error")

	// Storage errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Input errors.
	ErrInvalidInput = errors.New("invalid input")
)

// ConfigError is returned once, at construction time, when a component is
// missing something it needs (usually an API credential).
type ConfigError struct {
	Err       error
	Component string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not configured: %v", e.Component, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrConfig) match any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// NewConfigError creates a ConfigError for the named component.
func NewConfigError(component string, err error) error {
	return &ConfigError{Component: component, Err: err}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
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

// ProviderError wraps err so that errors.Is(err, ErrProvider) holds.
func ProviderError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrProvider) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrProvider, err)
}

// ParseError wraps err so that errors.Is(err, ErrParse) holds.
func ParseError(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", what, ErrParse, err)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsConfigError(err) {
		return false
	}

	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return errors.Is(err, ErrProvider)
}
