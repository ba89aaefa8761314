package backend

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrMalformedResponse marks a 2xx response whose body could not be used.
var ErrMalformedResponse = errors.New("malformed backend response")

// APIError is a non-2xx answer of the backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error %d: %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsDuplicate reports a send the backend had already accepted.
func IsDuplicate(err error) bool {
	return StatusOf(err) == http.StatusConflict
}

func IsRateLimited(err error) bool {
	return StatusOf(err) == http.StatusTooManyRequests
}
