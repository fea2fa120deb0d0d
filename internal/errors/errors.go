// Package errors provides custom error types for the strategy engine.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoData            = errors.New("no data")
	ErrSourceTimeout     = errors.New("data source timed out")
	ErrSourceUnavailable = errors.New("data source unavailable")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrCircuitOpen       = errors.New("circuit breaker is open")
	ErrInvalidSnapshot   = errors.New("invalid snapshot")
	ErrPublishFailed     = errors.New("publish failed")
)

// ModuleError is a fault raised while a strategy module generated proposals
// for one symbol.
type ModuleError struct {
	Strategy string
	Symbol   string
	Err      error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module error [%s] %s: %v", e.Strategy, e.Symbol, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// NewModuleError creates a new ModuleError.
func NewModuleError(strategy, symbol string, err error) *ModuleError {
	return &ModuleError{
		Strategy: strategy,
		Symbol:   symbol,
		Err:      err,
	}
}

// SourceError represents a failure fetching market inputs for a symbol.
type SourceError struct {
	Symbol  string
	Message string
	Err     error
}

func (e *SourceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("source error [%s]: %s: %v", e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("source error [%s]: %s", e.Symbol, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a new SourceError.
func NewSourceError(symbol, message string, err error) *SourceError {
	return &SourceError{
		Symbol:  symbol,
		Message: message,
		Err:     err,
	}
}

// StoreError represents an error from the relational or key-value store.
type StoreError struct {
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s]: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation string, err error) *StoreError {
	return &StoreError{
		Operation: operation,
		Err:       err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsNoData reports whether err means a symbol simply had nothing to evaluate.
func IsNoData(err error) bool {
	return errors.Is(err, ErrNoData) || errors.Is(err, ErrSourceTimeout)
}
