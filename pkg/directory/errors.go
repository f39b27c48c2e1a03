package directory

import (
	"errors"
	"fmt"
)

// RateLimitError means the API kept returning 429 after every retry the
// budget allowed.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("directory: rate limit exceeded after %d attempts", e.Attempts)
}

// NetworkError means the transport kept failing after every retry. The
// last underlying error is preserved.
type NetworkError struct {
	Err      error
	Attempts int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("directory: network failure after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// APIError is a non-2xx response other than 429. These are never retried;
// the body is kept for diagnosis.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("directory: unexpected status %d: %s", e.Status, e.Body)
}

// IsRateLimited reports whether err is a retry-exhausted 429.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// IsNetwork reports whether err is a retry-exhausted transport failure.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// APIStatus returns the HTTP status carried by err, or 0 if err is not an
// APIError.
func APIStatus(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}
