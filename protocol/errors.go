package protocol

import (
	"fmt"
)

// DecodeError reports a malformed or unexpected wire frame. Once a stream
// fails to decode, the connection has lost message framing and cannot be
// trusted again.
type DecodeError struct {
	MessageType byte
	Message     string
	Cause       error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol decode error on message %q: %s: %v", e.MessageType, e.Message, e.Cause)
	}
	return fmt.Sprintf("protocol decode error on message %q: %s", e.MessageType, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}
