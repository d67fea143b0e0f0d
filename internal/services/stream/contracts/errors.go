package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// StreamErrorKind categorizes the ways a stream can end other than cleanly
type StreamErrorKind int

const (
	// Cancelled is a deliberate shutdown (client disconnect or explicit stop), not a failure
	Cancelled StreamErrorKind = iota

	// UpstreamRequest means the upstream call failed before any frame was written
	UpstreamRequest
	// UpstreamStream means the upstream failed mid-stream, after headers were sent
	UpstreamStream
	// IdleTimeout means the upstream went quiet for longer than the configured limit
	IdleTimeout
	// Encoding means a snapshot could not be serialized
	Encoding
)

func (k StreamErrorKind) String() string {
	switch k {
	case Cancelled:
		return "cancelled"
	case UpstreamRequest:
		return "upstream_request"
	case UpstreamStream:
		return "upstream_stream"
	case IdleTimeout:
		return "idle_timeout"
	case Encoding:
		return "encoding"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StreamError provides structured error handling
type StreamError struct {
	Kind      StreamErrorKind
	Message   string
	Cause     error
	RequestID string
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// IsExpected reports whether the error is part of normal operation and must not be logged as a failure
func (e *StreamError) IsExpected() bool {
	return e.Kind == Cancelled
}

func NewCancelledError(requestID string, cause error) *StreamError {
	return &StreamError{
		Kind:      Cancelled,
		Message:   "stream cancelled",
		Cause:     cause,
		RequestID: requestID,
	}
}

func NewUpstreamRequestError(requestID string, cause error) *StreamError {
	return &StreamError{
		Kind:      UpstreamRequest,
		Message:   "upstream request failed",
		Cause:     cause,
		RequestID: requestID,
	}
}

func NewUpstreamStreamError(requestID string, cause error) *StreamError {
	return &StreamError{
		Kind:      UpstreamStream,
		Message:   "upstream stream failed",
		Cause:     cause,
		RequestID: requestID,
	}
}

func NewIdleTimeoutError(requestID string, cause error) *StreamError {
	return &StreamError{
		Kind:      IdleTimeout,
		Message:   "upstream idle timeout exceeded",
		Cause:     cause,
		RequestID: requestID,
	}
}

func NewEncodingError(requestID string, cause error) *StreamError {
	return &StreamError{
		Kind:      Encoding,
		Message:   "snapshot encoding failed",
		Cause:     cause,
		RequestID: requestID,
	}
}

// KindOf returns the kind of a StreamError anywhere in err's chain
func KindOf(err error) (StreamErrorKind, bool) {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.Kind, true
	}
	return 0, false
}

// IsCancelled checks if error is a deliberate cancellation
func IsCancelled(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == Cancelled
}

// IsExpectedError checks if error is expected (not a real error)
func IsExpectedError(err error) bool {
	var streamErr *StreamError
	if errors.As(err, &streamErr) {
		return streamErr.IsExpected()
	}
	return false
}

// IsConnectionClosed checks if error indicates closed connection
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection closed") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "use of closed network connection")
}
