package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Error reports a failed round trip: a non-2xx response, an undecodable
// body or a connection failure. StatusCode is zero in the last case.
type Error struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s: API returned %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: API returned %d", e.Method, e.URL, e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var terr *Error
	return errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound
}
