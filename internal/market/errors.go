package market

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors surfaced by the core components.
var (
	// ErrNotFound means a record could not be located in cache or upstream.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyLinked means the external identity already has a record link.
	ErrAlreadyLinked = errors.New("identity already linked")
	// ErrAborted means an aggregation exhausted its retry budget; no partial
	// results are returned alongside it.
	ErrAborted = errors.New("aggregation aborted")
)

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.Code, e.URL)
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusTooManyRequests
}

// IsTransient reports whether err is worth retrying: rate limiting, server
// errors, or transport failures. Malformed-body errors are not transient.
func IsTransient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return false
}
