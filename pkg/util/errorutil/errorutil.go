package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Kind classifies a DomainError for API callers.
type Kind string

const (
	KindNotFound         Kind = "NotFoundError"
	KindInvalidState     Kind = "InvalidStateError"
	KindValidation       Kind = "ValidationError"
	KindIneligible       Kind = "IneligibleError"
	KindAlreadyFinalized Kind = "AlreadyFinalizedError"
	KindConflict         Kind = "ConflictError"
	KindUnauthorized     Kind = "UnauthorizedError"
	KindForbidden        Kind = "ForbiddenError"
	KindInternal         Kind = "InternalError"
)

// DomainError standardizes application errors.
type DomainError struct {
	Kind       Kind
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
func NewDomainError(kind Kind, code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(KindValidation, "VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewInvalidState(message string, details map[string]any) error {
	return NewDomainError(KindInvalidState, "INVALID_STATE", message, http.StatusConflict, details)
}

// NewIneligible reports a failed reopen eligibility check; reason is
// surfaced in details under "reason".
func NewIneligible(reason string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["reason"] = reason
	return NewDomainError(KindIneligible, "REOPEN_INELIGIBLE", "ticket cannot be reopened: "+reason, http.StatusUnprocessableEntity, details)
}

func NewAlreadyFinalized(resource string, details map[string]any) error {
	return NewDomainError(KindAlreadyFinalized, "ALREADY_FINALIZED", fmt.Sprintf("%s already finalized", resource), http.StatusConflict, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(KindUnauthorized, "UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(KindForbidden, "FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(KindConflict, "CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Kind:       KindInternal,
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
		return NewDomainError(KindNotFound, "NOT_FOUND", "resource not found", http.StatusNotFound, map[string]any{})
	}
	return &DomainError{
		Kind:       KindInternal,
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsKind reports whether err carries a DomainError of the given kind.
func IsKind(err error, kind Kind) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind == kind
	}
	return false
}

func MapError(err error) error {
	return ToDomainError(err)
}
