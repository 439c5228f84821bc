package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransientFetch marks fetch failures worth retrying.
	ErrTransientFetch = errors.New("transient fetch failure")
	// ErrMalformedPDF marks a PDF that cannot be turned into text.
	ErrMalformedPDF = errors.New("malformed pdf")
	// ErrShapeMismatch marks source markup that no longer matches the expected pattern.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrRetriesExhausted is returned once the retry bound is reached.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Transient reports whether the status is worth another attempt.
func (e *StatusError) Transient() bool {
	switch {
	case e.Code == http.StatusRequestTimeout,
		e.Code == http.StatusTooEarly,
		e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 500:
		return true
	default:
		return false
	}
}

// Is lets errors.Is(err, ErrTransientFetch) match retryable statuses.
func (e *StatusError) Is(target error) bool {
	return target == ErrTransientFetch && e.Transient()
}

// ShapeMismatchError reports a value that failed a mandatory pattern capture.
type ShapeMismatchError struct {
	Field string
	Value string
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s %q does not match the expected shape", e.Field, e.Value)
}

// Unwrap ties the error to ErrShapeMismatch.
func (e *ShapeMismatchError) Unwrap() error {
	return ErrShapeMismatch
}

// IsTransient reports whether err is worth another attempt: transient HTTP
// statuses and transport failures are, cancellation and other statuses are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Transient()
	}
	return true
}
