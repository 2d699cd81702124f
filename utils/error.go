package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorBusy signals a conflicting in-flight reconciliation session.
// Callers may retry later; the request is never queued.
var ErrorBusy = errors.New("a conflicting session is already in progress")

// ValidationError marks malformed or out-of-range request parameters.
// These are rejected synchronously, before any work is scheduled.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
