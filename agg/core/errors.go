package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
)

// ErrorKind is the closed set of failure meanings a caller can branch on.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindTimeout
	KindAuthFailure
	KindRateLimited
	KindServerError
	KindStreamUnavailable
	KindMalformedResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindAuthFailure:
		return "auth_failure"
	case KindRateLimited:
		return "rate_limited"
	case KindServerError:
		return "server_error"
	case KindStreamUnavailable:
		return "stream_unavailable"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "generic"
	}
}

// Error is the only error type the client surfaces to its callers.
type Error struct {
	Kind ErrorKind
	// Message is the human readable description. For KindGeneric it is the underlying
	// error's message.
	Message string
	// StatusCode is the HTTP status when the failure came from a non-2xx response.
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether retrying the same request later may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimited, KindServerError:
		return true
	default:
		return false
	}
}

// StatusError is the raw transport failure for a non-2xx response.
type StatusError struct {
	StatusCode int
	Status     string
	// Body holds at most the first KiB of the response body.
	Body []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("HTTP %s", e.Status)
	}
	return fmt.Sprintf("HTTP %s: %s", e.Status, string(e.Body))
}

// DecodeError is the raw failure for a response body that does not match the expected schema.
type DecodeError struct {
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unexpected response body: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ErrStreamUnavailable is returned when a streaming response carries no readable body.
var ErrStreamUnavailable = errors.New("no readable response stream")

// Classify maps any transport failure into exactly one *Error. It never fails and it returns
// nil only for a nil input.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if isDeadline(err) {
		return &Error{Kind: KindTimeout, Message: "request deadline exceeded", Cause: err}
	}

	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(se)
	}

	var de *DecodeError
	if errors.As(err, &de) {
		return &Error{Kind: KindMalformedResponse, Message: de.Error(), Cause: err}
	}

	if errors.Is(err, ErrStreamUnavailable) {
		return &Error{Kind: KindStreamUnavailable, Message: ErrStreamUnavailable.Error(), Cause: err}
	}

	return &Error{Kind: KindGeneric, Message: err.Error(), Cause: err}
}

func classifyStatus(se *StatusError) *Error {
	e := &Error{StatusCode: se.StatusCode, Message: se.Error(), Cause: se}

	switch {
	case se.StatusCode == http.StatusUnauthorized:
		e.Kind = KindAuthFailure
	case se.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case se.StatusCode >= 500:
		e.Kind = KindServerError
	default:
		e.Kind = KindGeneric
	}

	return e
}

func isDeadline(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// KindOf classifies err and returns its kind. A nil error is reported as KindGeneric.
func KindOf(err error) ErrorKind {
	if e := Classify(err); e != nil {
		return e.Kind
	}
	return KindGeneric
}

func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
