package delivery

import (
	"errors"
	"fmt"
)

// ErrExhausted is wrapped by outcomes whose attempts all failed.
var ErrExhausted = errors.New("webhook delivery attempts exhausted")

// StatusError is a non-200 answer from a webhook.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook returned status %d", e.StatusCode)
}

// UnexpectedError wraps anything other than a transport failure or a bad status,
// including panics raised while delivering.
type UnexpectedError struct {
	Err error
}

func (e *UnexpectedError) Error() string {
	return "unexpected delivery error: " + e.Err.Error()
}

func (e *UnexpectedError) Unwrap() error {
	return e.Err
}
