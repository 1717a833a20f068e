// Package shared contains the error taxonomy used across the domain packages.
// This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrInvalidFormat = errors.New("invalid format")

	// Stored data violates an invariant the application relies on.
	ErrDataIntegrity = errors.New("data integrity violation")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "giveaway", "store", "telegram"
	Op      string // Operation that failed, e.g., "RegisterEntry"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Giveaway domain errors
var (
	ErrAlreadyRegistered  = NewDomainError("giveaway", "RegisterEntry", ErrAlreadyExists, "user already registered for this event")
	ErrInvalidWallet      = NewDomainError("giveaway", "RegisterEntry", ErrValidation, "wallet address length out of range")
	ErrReferralNotCounted = NewDomainError("giveaway", "RegisterEntry", ErrServiceUnavailable, "entry saved but referral credit failed")
	ErrEventExists        = NewDomainError("giveaway", "CreateEvent", ErrAlreadyExists, "event with this ID already exists")
	ErrMultipleOpenEvents = NewDomainError("giveaway", "OpenEvent", ErrDataIntegrity, "more than one event is marked active")
	ErrMalformedEndDate   = NewDomainError("giveaway", "ClosesAt", ErrDataIntegrity, "event end date is malformed")
	ErrOrphanEntry        = NewDomainError("giveaway", "History", ErrDataIntegrity, "entry references a missing event")
)

// External service errors
var (
	ErrStoreUnavailable  = NewDomainError("store", "Query", ErrServiceUnavailable, "data store is unreachable")
	ErrTelegramAPIFailed = NewDomainError("telegram", "Send", ErrExternalService, "Telegram API request failed")

	// ErrDrawUnsupported is returned by stores that have neither the draw
	// procedure nor a configured drawer.
	ErrDrawUnsupported = NewDomainError("store", "DrawWinners", ErrServiceUnavailable, "winner draw requires the database procedure")
)

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsDataIntegrity checks if the error reports inconsistent stored data.
func IsDataIntegrity(err error) bool {
	return errors.Is(err, ErrDataIntegrity)
}

// IsTransient checks if the error is a transient store or network failure.
// The caller may retry the whole operation.
func IsTransient(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}
