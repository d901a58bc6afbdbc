// Package apierr defines the tagged error carried from the service layer to
// the HTTP boundary: an HTTP-ish status code, a human-readable message and an
// optional list of field-level error strings.
package apierr

import "errors"

// Error is a request-scoped failure with an associated status code.
type Error struct {
	StatusCode int
	Message    string
	Errors     []string
}

func (e *Error) Error() string {
	return e.Message
}

// New creates an Error with the given status code and message.
func New(statusCode int, message string, fieldErrors ...string) *Error {
	return &Error{StatusCode: statusCode, Message: message, Errors: fieldErrors}
}

// From extracts an *Error from err's chain, if there is one.
func From(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
