package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Policy error codes surfaced to clients so they can translate to
// user-facing text.
const (
	CodeOutsideWorkingHours  = "outside_working_hours"
	CodeNoAgentsAvailable    = "no_agents_available"
	CodeTagsRequired         = "tags_required"
	CodeCustomFieldsDisabled = "custom_fields_disabled"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewPolicyError signals a business-rule refusal (working hours, offline
// agents, required tags). Policy refusals are expected traffic and are
// never logged at error level.
func NewPolicyError(code, message string, details map[string]any) error {
	return NewDomainError(code, message, http.StatusBadRequest, details)
}

// NewUpstreamDegraded signals a fast failure taken while a circuit
// breaker is open.
func NewUpstreamDegraded(backend string) error {
	return NewDomainError("UPSTREAM_DEGRADED",
		fmt.Sprintf("%s temporarily unavailable", backend),
		http.StatusServiceUnavailable, nil)
}

// NewTransient signals an infrastructure failure that exhausted its
// local retry budget.
func NewTransient(message string, err error) error {
	return &DomainError{
		Code:       "TRANSIENT_FAILURE",
		Message:    message,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// IsPolicy reports whether err carries one of the policy codes.
func IsPolicy(err error) bool {
	de := ToDomainError(err)
	switch de.Code {
	case CodeOutsideWorkingHours, CodeNoAgentsAvailable, CodeTagsRequired, CodeCustomFieldsDisabled:
		return true
	}
	return false
}
