package client

import (
	"encoding/json"
	"fmt"
	"runtime"
	"time"
)

// SequenceError reports protocol misuse by the caller: exiting pipeline
// mode with pending entries, advancing past undrained results, issuing a
// single-shot query while pipelining. It is always local and recoverable;
// connection state is left untouched.
type SequenceError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	StackTrace []string               `json:"stack_trace,omitempty"`
}

// Error implements the error interface.
func (e *SequenceError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *SequenceError) FormatError(debugMode bool) string {
	if !debugMode {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}
	if len(e.StackTrace) > 0 {
		errorData["stack_trace"] = e.StackTrace
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// ErrSequence creates a SequenceError for a misused operation.
func ErrSequence(operation, message string) *SequenceError {
	return &SequenceError{
		Code:    "SEQUENCE_VIOLATION",
		Type:    "SEQUENCE_ERROR",
		Message: fmt.Sprintf("%s: %s", operation, message),
		Details: map[string]interface{}{
			"operation": operation,
		},
		StackTrace: captureStackTrace(),
	}
}

// QueryError reports a server-side rejection of one request. It is carried
// inside an ErrorOccurred envelope in pipeline mode and returned directly
// from single-shot execution; it is never fatal to the connection.
type QueryError struct {
	Code      string                 `json:"code"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	SQLState  string                 `json:"sqlstate,omitempty"`
	Severity  string                 `json:"severity,omitempty"`
	Detail    string                 `json:"detail,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *QueryError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.SQLState != "" {
			return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Code, e.Message, e.SQLState)
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}
	if e.SQLState != "" {
		errorData["sqlstate"] = e.SQLState
	}
	if e.Severity != "" {
		errorData["severity"] = e.Severity
	}
	if e.Detail != "" {
		errorData["detail"] = e.Detail
	}
	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}
	if !e.Timestamp.IsZero() {
		errorData["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// ProtocolError reports a malformed or out-of-place server reply. Message
// framing can no longer be trusted once one occurs.
type ProtocolError struct {
	Code      string                 `json:"code"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details"`
	Cause     error                  `json:"cause,omitempty"`
	Timestamp time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *ProtocolError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}
	if e.Cause != nil {
		errorData["cause"] = map[string]interface{}{"message": e.Cause.Error()}
	}
	if !e.Timestamp.IsZero() {
		errorData["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// Unwrap returns the underlying cause error.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// ConnectionError reports a transport failure. It is fatal: every pending
// queue entry resolves as failed and the Connection must be discarded.
type ConnectionError struct {
	Code       string                 `json:"code"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details"`
	Cause      error                  `json:"cause,omitempty"`
	StackTrace []string               `json:"stack_trace,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	return e.FormatError(false)
}

// FormatError formats the error based on debug mode.
func (e *ConnectionError) FormatError(debugMode bool) string {
	if !debugMode {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
		}
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	errorData := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
	}
	if len(e.Details) > 0 {
		errorData["details"] = e.Details
	}
	if e.Cause != nil {
		errorData["cause"] = map[string]interface{}{"message": e.Cause.Error()}
	}
	if len(e.StackTrace) > 0 {
		errorData["stack_trace"] = e.StackTrace
	}
	if !e.Timestamp.IsZero() {
		errorData["timestamp"] = e.Timestamp.Format(time.RFC3339Nano)
	}

	b, _ := json.MarshalIndent(errorData, "", "  ")
	return string(b)
}

// Unwrap returns the underlying cause error.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ErrConnection creates a ConnectionError wrapping a transport failure.
func ErrConnection(code, message string, cause error) *ConnectionError {
	return &ConnectionError{
		Code:       code,
		Type:       "CONNECTION_ERROR",
		Message:    message,
		Cause:      cause,
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// ErrConnectionClosed creates the error returned by operations on a closed
// or poisoned Connection.
func ErrConnectionClosed() *ConnectionError {
	return &ConnectionError{
		Code:       "CONNECTION_CLOSED",
		Type:       "CONNECTION_ERROR",
		Message:    "connection is closed",
		StackTrace: captureStackTrace(),
		Timestamp:  time.Now(),
	}
}

// captureStackTrace captures the current stack trace for error reporting.
func captureStackTrace() []string {
	const maxDepth = 32
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(3, pcs) // Skip captureStackTrace, the error constructor, and runtime.Callers

	frames := make([]string, 0, n)
	callersFrames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := callersFrames.Next()
		frames = append(frames, fmt.Sprintf("%s (%s:%d)",
			frame.Function,
			frame.File,
			frame.Line,
		))
		if !more {
			break
		}
	}

	return frames
}

// FormatError is a helper to format any error with debug mode support.
func FormatError(err error, debugMode bool) string {
	if err == nil {
		return ""
	}

	type debugFormatter interface {
		FormatError(bool) string
	}

	if formatter, ok := err.(debugFormatter); ok {
		return formatter.FormatError(debugMode)
	}

	return err.Error()
}
