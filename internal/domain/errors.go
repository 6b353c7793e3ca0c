package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteUnavailable covers network failures and non-2xx answers from
	// the Classifier or Question Service.
	ErrRemoteUnavailable = errors.New("remote service unavailable")

	// ErrForbidden is a 403 from the Question Service.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidDestination marks URLs that cannot be classified (browser
	// internal pages, malformed input).
	ErrInvalidDestination = errors.New("invalid destination")

	// ErrRuleSync is returned when the runtime rejects a rule update.
	ErrRuleSync = errors.New("rule sync failure")

	// ErrInvalidTransition is returned when a command does not apply to the
	// current session state.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrUnknownDomain is returned for a focus domain not in the catalog.
	ErrUnknownDomain = errors.New("unknown focus domain")
)

// RemoteError describes a failed call to an external service.
type RemoteError struct {
	Service string // "classifier" or "questions"
	Op      string
	Status  int // HTTP status, 0 for transport errors
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Service, e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Service, e.Op, e.Message)
}

// Unwrap exposes the taxonomy sentinel.
func (e *RemoteError) Unwrap() error {
	return e.Err
}
