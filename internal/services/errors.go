package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prepline/attempt-service/internal/validator"
)

// ===== SENTINEL ERRORS =====

var (
	// Test errors
	ErrTestNotFound     = errors.New("test not found")
	ErrTestNotAvailable = errors.New("test is not available for attempts")

	// Attempt errors
	ErrAttemptNotFound         = errors.New("attempt not found")
	ErrAttemptNotActive        = errors.New("attempt is not in progress")
	ErrAttemptAlreadySubmitted = errors.New("attempt has already been submitted")
	ErrAttemptTimeExpired      = errors.New("attempt time window has expired")
	ErrQuestionNotInTest       = errors.New("question does not belong to this test")

	// Group errors
	ErrGroupNotFound   = errors.New("group not found")
	ErrNotGroupMember  = errors.New("user is not a member of this group")
	ErrTestNotAssigned = errors.New("test is not assigned to this group")
	ErrInviteInvalid   = errors.New("invite code is invalid or exhausted")

	// User errors
	ErrUserNotFound = errors.New("user not found")

	// Generic errors
	ErrForbidden        = errors.New("operation not permitted")
	ErrValidationFailed = errors.New("validation failed")
)

// ===== STRUCTURED ERRORS =====

// PermissionError carries the denied actor and target for logging and the
// 403 response body.
type PermissionError struct {
	UserID   string
	TargetID string
	Resource string
	Action   string
	Reason   string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %s: %s",
		e.UserID, e.Action, e.Resource, e.TargetID, e.Reason)
}

func (e *PermissionError) Unwrap() error {
	return ErrForbidden
}

func NewPermissionError(userID, targetID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:   userID,
		TargetID: targetID,
		Resource: resource,
		Action:   action,
		Reason:   reason,
	}
}

// BusinessRuleError marks violations of domain rules that map to 409.
type BusinessRuleError struct {
	Rule    string
	Message string
}

func (e *BusinessRuleError) Error() string {
	return fmt.Sprintf("business rule %s violated: %s", e.Rule, e.Message)
}

func NewBusinessRuleError(rule, message string) *BusinessRuleError {
	return &BusinessRuleError{Rule: rule, Message: message}
}

// FieldError describes a single invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors aggregates field errors for a 400 response.
type ValidationErrors struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationErrors) Unwrap() error {
	return ErrValidationFailed
}

func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// ===== CLASSIFIERS =====

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrTestNotFound) ||
		errors.Is(err, ErrAttemptNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe) || errors.Is(err, ErrForbidden)
}

func IsValidationError(err error) bool {
	var ve *ValidationErrors
	var fe validator.FieldErrors
	return errors.As(err, &ve) || errors.As(err, &fe) || errors.Is(err, ErrValidationFailed)
}

func IsBusinessRuleError(err error) bool {
	var be *BusinessRuleError
	return errors.As(err, &be)
}
