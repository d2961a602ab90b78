package search

import (
	"errors"
	"fmt"
)

// InvalidRequestError reports a request rejected before any work was done.
type InvalidRequestError struct {
	Field string
	Err   error
}

func (e *InvalidRequestError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Err.Error()
	}
	return fmt.Sprintf("invalid request: %s: %v", e.Field, e.Err)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

// IsInvalidRequest reports whether err is or wraps an *InvalidRequestError.
func IsInvalidRequest(err error) bool {
	var ir *InvalidRequestError
	return errors.As(err, &ir)
}
