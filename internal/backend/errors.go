package backend

import (
	"errors"
	"fmt"
)

// Op names a backend operation.
type Op string

const (
	OpStartSession    Op = "start_session"
	OpGetQuestion     Op = "get_question"
	OpSubmitAnswer    Op = "submit_answer"
	OpGetMotivation   Op = "get_motivation"
	OpGetSessionStats Op = "get_session_stats"
	OpHealth          Op = "health"
)

// Message returns the short human-readable failure message for op.
func (op Op) Message() string {
	switch op {
	case OpStartSession:
		return "Failed to start session"
	case OpGetQuestion:
		return "Failed to fetch question"
	case OpSubmitAnswer:
		return "Failed to submit answer"
	case OpGetMotivation:
		return "Failed to fetch motivation message"
	case OpGetSessionStats:
		return "Failed to fetch session statistics"
	case OpHealth:
		return "Backend is not available"
	}
	return "Request failed"
}

// ErrRequest matches every *Error via errors.Is.
var ErrRequest = errors.New("backend request failed")

// Error is returned by every Client method on transport, status or decoding
// failure. Error() is the short message; the cause is kept for logs.
type Error struct {
	Op      Op
	Status  int // HTTP status, 0 for transport failures
	Wrapped error
}

func (e *Error) Error() string {
	return e.Op.Message()
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

func (e *Error) Is(target error) bool {
	return target == ErrRequest
}

// Detail describes the underlying cause.
func (e *Error) Detail() string {
	if e.Wrapped == nil {
		return e.Op.Message()
	}
	return fmt.Sprintf("%s: %v", e.Op.Message(), e.Wrapped)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
