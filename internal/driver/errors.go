package driver

import (
	"errors"
	"fmt"
)

// Failure classes. Every error a Session or page handler returns matches at most
// one of these with errors.Is.
var (
	// ErrTransport covers connection failures and timeouts that exhausted retries.
	ErrTransport = errors.New("transport error")
	// ErrRateLimited covers 429/403 responses that exhausted retries.
	ErrRateLimited = errors.New("rate limited")
	// ErrBlockedContent is a 2xx response whose body is a challenge page.
	ErrBlockedContent = errors.New("blocked content")
	// ErrUnexpectedResponse covers other statuses and unparseable bodies.
	ErrUnexpectedResponse = errors.New("unexpected response")
	// ErrIncompatible means the site no longer matches the driver's assumptions.
	ErrIncompatible = errors.New("site incompatible")
)

// FetchError describes a failed exchange.
type FetchError struct {
	Kind   error
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.URL)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Incompatible reports that an expected field, control, or envelope is missing.
func Incompatible(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIncompatible, fmt.Sprintf(format, args...))
}

// Unexpected reports a body the driver could not parse.
func Unexpected(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnexpectedResponse, fmt.Sprintf(format, args...))
}
