// internal/models/errors.go
package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrAlreadyCancelled      = errors.New("reservation already cancelled")
	ErrAlreadyOnWaitlist     = errors.New("already on waitlist")
	ErrGameNotOpen           = errors.New("game is not open")
	ErrCapacityReached       = errors.New("game capacity reached")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenAlreadyUsed      = errors.New("token already used")
	ErrValidationFailed      = errors.New("validation failed")
	ErrConflictLost          = errors.New("conflicting reservation committed first")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrStrikeLimit           = errors.New("strike limit reached")
)

// ErrUserNotFound is a NotFound for the identity store.
var ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

// ErrTokenNotFound is a NotFound for notification tokens.
var ErrTokenNotFound = fmt.Errorf("token %w", ErrNotFound)

// Validation reasons.
const (
	ReasonHorizon       = "horizon"
	ReasonPastTime      = "past_time"
	ReasonInvalidRange  = "invalid_range"
	ReasonOffGrid       = "off_grid"
	ReasonPartySize     = "party_size"
	ReasonDurationLimit = "duration_limit"
	ReasonResourceType  = "resource_type"
	ReasonIdentifier    = "identifier"
)

// ValidationError carries the specific rule that rejected a request.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed (%s): %s", e.Reason, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidationFailed }

func NewValidationError(reason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// ValidationReason extracts the reason from a validation failure, or "".
func ValidationReason(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return ""
}

// Unavailable wraps a collaborator failure as DependencyUnavailable.
func Unavailable(what string, err error) error {
	return fmt.Errorf("%s: %w: %v", what, ErrDependencyUnavailable, err)
}

var kinds = []struct {
	err  error
	name string
}{
	{ErrValidationFailed, "ValidationFailed"},
	{ErrPermissionDenied, "PermissionDenied"},
	{ErrAlreadyCancelled, "AlreadyCancelled"},
	{ErrAlreadyOnWaitlist, "AlreadyOnWaitlist"},
	{ErrGameNotOpen, "GameNotOpen"},
	{ErrCapacityReached, "CapacityReached"},
	{ErrTokenExpired, "TokenExpired"},
	{ErrTokenAlreadyUsed, "TokenAlreadyUsed"},
	{ErrConflictLost, "ConflictLost"},
	{ErrDependencyUnavailable, "DependencyUnavailable"},
	{ErrStrikeLimit, "StrikeLimit"},
	{ErrNotFound, "NotFound"},
}

// KindOf names the failure kind of err for logs and CLI output.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Internal"
}
