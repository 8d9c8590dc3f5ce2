// Package fault defines the error kinds shared by the audit core.
//
// Every command and query returns an error wrapping exactly one of these
// kinds, so callers can branch with errors.Is and show Reason(err) to the
// operator. None of them is fatal: state is either unchanged or the caller
// is expected to retry.
package fault

import "errors"

var (
	// ErrInvalidTransition means the command is not legal from the
	// current session status.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrCredentialDenied means a lock rejected the supplied secret.
	ErrCredentialDenied = errors.New("invalid credential")

	// ErrServiceUnavailable means the Detection Service or credential
	// store could not be reached or failed.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrValidationFailure means a service response was rejected, e.g. a
	// cumulative weight regression.
	ErrValidationFailure = errors.New("validation failure")
)

// Reason returns the human-readable reason for err: the message of the
// kind it wraps, or the error text for anything else.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidTransition):
		return ErrInvalidTransition.Error()
	case errors.Is(err, ErrCredentialDenied):
		return ErrCredentialDenied.Error()
	case errors.Is(err, ErrServiceUnavailable):
		return ErrServiceUnavailable.Error()
	case errors.Is(err, ErrValidationFailure):
		return ErrValidationFailure.Error()
	default:
		return err.Error()
	}
}
