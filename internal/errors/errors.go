// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Unavailable-action errors. These are resolved before any ledger call and
// surface as a disabled trade action rather than a failure.
var (
	ErrPlanInvalid     = errors.New("trade plan invalid")
	ErrNoInstrument    = errors.New("no derivative available")
	ErrBelowConfidence = errors.New("confidence below threshold")
)

// Standard sentinel errors
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrPositionNotFound   = errors.New("position not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrInvariantViolation = errors.New("ledger invariant violation")
	ErrVersionConflict    = errors.New("version conflict")
	ErrStaleCapital       = errors.New("capital snapshot is stale")
	ErrDuplicateSignal    = errors.New("signal already has a position")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrDatabaseError      = errors.New("database error")
	ErrInputValidation    = errors.New("input validation failed")
	ErrActionDisabled     = errors.New("trade action disabled")
)

// IsUnavailable reports whether err marks a trade action as unavailable
// rather than failed.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrPlanInvalid) ||
		errors.Is(err, ErrNoInstrument) ||
		errors.Is(err, ErrBelowConfidence)
}

// OrderError represents an error related to order operations.
type OrderError struct {
	SignalID string
	Symbol   string
	Action   string
	Reason   string
	Err      error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.SignalID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.SignalID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(signalID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{
		SignalID: signalID,
		Symbol:   symbol,
		Action:   action,
		Reason:   reason,
		Err:      err,
	}
}

// DispatchError is a failure at the ledger boundary. The execution moves to
// its error state and no ledger mutation is applied.
type DispatchError struct {
	ExecutionID string
	SignalID    string
	Message     string
	Err         error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatch failed [%s] signal %s: %s: %v", e.ExecutionID, e.SignalID, e.Message, e.Err)
	}
	return fmt.Sprintf("dispatch failed [%s] signal %s: %s", e.ExecutionID, e.SignalID, e.Message)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// NewDispatchError creates a new DispatchError.
func NewDispatchError(executionID, signalID, message string, err error) *DispatchError {
	return &DispatchError{
		ExecutionID: executionID,
		SignalID:    signalID,
		Message:     message,
		Err:         err,
	}
}

// LedgerError is a rejected ledger mutation.
type LedgerError struct {
	PositionID string
	Operation  string
	Reason     string
	Err        error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ledger error [%s] %s: %s: %v", e.PositionID, e.Operation, e.Reason, e.Err)
	}
	return fmt.Sprintf("ledger error [%s] %s: %s", e.PositionID, e.Operation, e.Reason)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

// NewInvariantViolation creates a LedgerError wrapping ErrInvariantViolation.
func NewInvariantViolation(positionID, operation, reason string) *LedgerError {
	return &LedgerError{
		PositionID: positionID,
		Operation:  operation,
		Reason:     reason,
		Err:        ErrInvariantViolation,
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

func (e *ValidationError) Unwrap() error {
	return ErrInputValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// PlanError explains why a signal could not become a trade plan.
type PlanError struct {
	SignalID string
	Reason   string
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan invalid [%s]: %s", e.SignalID, e.Reason)
}

func (e *PlanError) Unwrap() error {
	return ErrPlanInvalid
}

// NewPlanError creates a new PlanError.
func NewPlanError(signalID, reason string) *PlanError {
	return &PlanError{SignalID: signalID, Reason: reason}
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
