package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated           = errors.New("protocol: truncated data")
	ErrTrailingData        = errors.New("protocol: trailing data")
	ErrInvalidLength       = errors.New("protocol: invalid length")
	ErrMissingFields       = errors.New("protocol: missing fields")
	ErrMessageTypeMismatch = errors.New("protocol: message type mismatch")
)

// DecodeError reports a payload that did not match the shape of its
// message number. Err is one of ErrTruncated, ErrTrailingData or
// ErrInvalidLength.
type DecodeError struct {
	Type MessageNumber
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
