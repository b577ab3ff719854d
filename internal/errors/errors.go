package errors

import (
	"context"
	"errors"
	"fmt"
)

// Common error types for the reconciliation service
var (
	// Session errors
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExpired    = errors.New("session expired")
	ErrEmptySessionID    = errors.New("session id is empty")
	ErrInvalidCookie     = errors.New("invalid cookie")
	ErrBackendFailure    = errors.New("backend unavailable")
	ErrInvalidIDToken    = errors.New("invalid id token")
	ErrInvalidSignInFlow = errors.New("invalid sign-in state")

	// Tenant errors
	ErrInvalidTenantID = errors.New("invalid tenant id")
	ErrTenantMismatch  = errors.New("tenant claim disagrees with backend")

	// Onboarding errors
	ErrUnknownStep         = errors.New("unknown onboarding step")
	ErrInvalidTransition   = errors.New("invalid onboarding transition")
	ErrStepMismatch        = errors.New("onboarding step does not match verified state")
	ErrTransitionInFlight  = errors.New("onboarding transition already in flight")
	ErrVerificationFailed  = errors.New("onboarding step could not be verified")
	ErrInvalidPayload      = errors.New("invalid onboarding payload")
	ErrInconsistentState   = errors.New("onboarding status and step disagree")
	ErrRetryBudgetExceeded = errors.New("retry budget exhausted")

	// Recovery errors
	ErrRecoverySuppressed = errors.New("automatic recovery suppressed")

	// General errors
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// Class is the handling class an error belongs to.
type Class string

const (
	ClassNone            Class = ""
	ClassUnauthenticated Class = "unauthenticated"
	ClassTransient       Class = "transient"
	ClassInconsistent    Class = "inconsistent"
	ClassInvalid         Class = "invalid"
	ClassRunaway         Class = "runaway"
	ClassInternal        Class = "internal"
)

// Classify maps an error onto the handling class that decides how it is surfaced.
// Unauthenticated is the only class that forces a sign-in, and runaway is the only
// class that converts automatic recovery into a manual retry.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassNone
	case Is(err, ErrUnauthenticated), Is(err, ErrSessionNotFound), Is(err, ErrSessionExpired),
		Is(err, ErrEmptySessionID), Is(err, ErrInvalidCookie), Is(err, ErrInvalidIDToken),
		Is(err, ErrInvalidSignInFlow):
		return ClassUnauthenticated
	case Is(err, ErrRecoverySuppressed):
		return ClassRunaway
	case Is(err, ErrBackendFailure), Is(err, ErrVerificationFailed), Is(err, ErrRetryBudgetExceeded),
		Is(err, context.DeadlineExceeded):
		return ClassTransient
	case Is(err, ErrTenantMismatch), Is(err, ErrInvalidTransition), Is(err, ErrStepMismatch),
		Is(err, ErrTransitionInFlight), Is(err, ErrInconsistentState):
		return ClassInconsistent
	case Is(err, ErrInvalidPayload), Is(err, ErrUnknownStep), Is(err, ErrInvalidTenantID):
		return ClassInvalid
	default:
		return ClassInternal
	}
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
