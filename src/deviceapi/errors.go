package deviceapi

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Outcome classifies the result of a device call so callers can decide
// how severe a failure is.
type Outcome int

const (
	OK Outcome = iota
	// Unreachable: device offline or wrong address.
	Unreachable
	// Timeout: device slow or overloaded.
	Timeout
	// Rejected: device answered with a non-200 status.
	Rejected
	// Malformed: the response body was not the JSON we expected.
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case OK:
		return "ok"
	case Unreachable:
		return "unreachable"
	case Timeout:
		return "timeout"
	case Rejected:
		return "rejected"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// StatusError reports a non-200 response.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("%s: HTTP %d", e.Op, e.Code) }

// CallError wraps any failed device call with its classification.
type CallError struct {
	Op      string
	Outcome Outcome
	Err     error
}

func (e *CallError) Error() string { return fmt.Sprintf("%s: %s: %v", e.Op, e.Outcome, e.Err) }
func (e *CallError) Unwrap() error { return e.Err }

// Classify maps an error returned by a Client to an Outcome.
// Errors that carry no classification are treated as Unreachable.
func Classify(err error) Outcome {
	if err == nil {
		return OK
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Outcome
	}
	var se *StatusError
	if errors.As(err, &se) {
		return Rejected
	}
	if isTimeout(err) {
		return Timeout
	}
	return Unreachable
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func classified(op string, outcome Outcome, err error) error {
	return &CallError{Op: op, Outcome: outcome, Err: err}
}

// Rejection builds the error the HTTP client returns for a non-200 response.
func Rejection(op string, code int) error {
	return classified(op, Rejected, &StatusError{Op: op, Code: code})
}

// Failure builds a classified error.
func Failure(op string, outcome Outcome, err error) error {
	return classified(op, outcome, err)
}
