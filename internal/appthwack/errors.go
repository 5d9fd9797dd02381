package appthwack

import (
	"errors"

	"github.com/appthwack/thwack/internal/transport"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("appthwack: invalid argument")

// ValidationError is returned before any request is sent when a required
// argument is missing or empty.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransportError is what the transport returns for non-2xx responses,
// undecodable bodies and connection failures. It reaches callers unwrapped.
type TransportError = transport.Error
