package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeState        ErrorCode = "INVALID_STATE"
	ErrCodeLocked       ErrorCode = "LOCKED"
	ErrCodeConsensus    ErrorCode = "CONSENSUS"
	ErrCodeCalculation  ErrorCode = "CALCULATION"
	ErrCodeExecution    ErrorCode = "EXECUTION_FAILED"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a domain-level error. Field names the input, rule or
// transition that caused the rejection when one applies.
type Error struct {
	Code    ErrorCode
	Message string
	Field   string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches domain errors by code and message so sentinel values keep
// working after being wrapped with a field or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation reports bad input on a specific field.
func Validation(field, format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeInvalid, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IllegalTransition reports a state machine transition that is not allowed.
func IllegalTransition(entity string, from, to interface{}) *Error {
	return &Error{
		Code:    ErrCodeState,
		Field:   entity,
		Message: fmt.Sprintf("cannot transition from %v to %v", from, to),
	}
}

// StateErr reports an operation that is not allowed in the current state.
func StateErr(entity, format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeState, Field: entity, Message: fmt.Sprintf(format, args...)}
}

// Locked reports a mutation attempted on locked composition or rules.
func Locked(entity, id string) *Error {
	return &Error{
		Code:    ErrCodeLocked,
		Field:   entity,
		Message: fmt.Sprintf("%s is locked by an active formulation; submit a change proposal", id),
	}
}

// Consensus reports a voting protocol violation.
func Consensus(format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeConsensus, Field: "vote", Message: fmt.Sprintf(format, args...)}
}

// Calculation reports insufficient or inconsistent payout inputs.
func Calculation(format string, args ...interface{}) *Error {
	return &Error{Code: ErrCodeCalculation, Message: fmt.Sprintf(format, args...)}
}

// ExecutionFailure wraps the cause of a failed settlement execution.
func ExecutionFailure(executionID string, err error) *Error {
	return &Error{
		Code:    ErrCodeExecution,
		Field:   "execution",
		Message: fmt.Sprintf("settlement execution %s failed", executionID),
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrDealNotFound        = NewError(ErrCodeNotFound, "deal not found")
	ErrIngredientNotFound  = NewError(ErrCodeNotFound, "ingredient not found")
	ErrFormulationNotFound = NewError(ErrCodeNotFound, "formulation not found")
	ErrNoActiveFormulation = NewError(ErrCodeNotFound, "deal has no active formulation")
	ErrRuleNotFound        = NewError(ErrCodeNotFound, "attribution rule not found")
	ErrProposalNotFound    = NewError(ErrCodeNotFound, "change proposal not found")
	ErrContractNotFound    = NewError(ErrCodeNotFound, "settlement contract not found")
	ErrExecutionNotFound   = NewError(ErrCodeNotFound, "settlement execution not found")
	ErrPayoutNotFound      = NewError(ErrCodeNotFound, "settlement payout not found")
	ErrCreditNotFound      = NewError(ErrCodeNotFound, "credit not found")
	ErrVersionConflict     = NewError(ErrCodeConflict, "aggregate was modified concurrently")
	ErrDuplicate           = NewError(ErrCodeConflict, "record already exists")
	ErrUnauthorized        = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidPayload      = NewError(ErrCodeInvalid, "invalid payload")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}
