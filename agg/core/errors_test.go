package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   ErrorKind
		status int
	}{
		{"unauthorized", &StatusError{StatusCode: 401, Status: "401 Unauthorized"}, KindAuthFailure, 401},
		{"too many requests", &StatusError{StatusCode: 429, Status: "429 Too Many Requests"}, KindRateLimited, 429},
		{"service unavailable", &StatusError{StatusCode: 503, Status: "503 Service Unavailable"}, KindServerError, 503},
		{"internal error", &StatusError{StatusCode: 500, Status: "500 Internal Server Error"}, KindServerError, 500},
		{"forbidden is generic", &StatusError{StatusCode: 403, Status: "403 Forbidden"}, KindGeneric, 403},
		{"bad request is generic", &StatusError{StatusCode: 400, Status: "400 Bad Request"}, KindGeneric, 400},
		{"deadline", context.DeadlineExceeded, KindTimeout, 0},
		{"wrapped deadline", &url.Error{Op: "Post", URL: "http://x", Err: context.DeadlineExceeded}, KindTimeout, 0},
		{"os deadline", fmt.Errorf("read body: %w", os.ErrDeadlineExceeded), KindTimeout, 0},
		{"net timeout", &url.Error{Op: "Post", URL: "http://x", Err: timeoutErr{}}, KindTimeout, 0},
		{"decode", &DecodeError{Body: []byte("<html>"), Err: errors.New("invalid character '<'")}, KindMalformedResponse, 0},
		{"no stream", fmt.Errorf("open: %w", ErrStreamUnavailable), KindStreamUnavailable, 0},
		{"canceled", context.Canceled, KindGeneric, 0},
		{"anything else", errors.New("connection refused"), KindGeneric, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got == nil {
				t.Fatalf("expected a classified error, got nil")
			}
			if got.Kind != tt.kind {
				t.Fatalf("expected kind %s, got %s", tt.kind, got.Kind)
			}
			if got.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, got.StatusCode)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("classified error should wrap its cause")
			}
		})
	}
}

func TestClassifyGenericKeepsMessage(t *testing.T) {
	got := Classify(errors.New("dial tcp: connection refused"))
	if got.Message != "dial tcp: connection refused" {
		t.Fatalf("expected underlying message, got %q", got.Message)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	first := Classify(&StatusError{StatusCode: 429, Status: "429 Too Many Requests"})
	second := Classify(fmt.Errorf("Client.Send: %w", first))
	if first != second {
		t.Fatalf("expected an already classified error to be returned as is")
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != nil {
		t.Fatalf("expected nil for nil input")
	}
	if IsKind(nil, KindGeneric) {
		t.Fatalf("nil error should not match any kind")
	}
}

func TestRetryable(t *testing.T) {
	retryable := map[ErrorKind]bool{
		KindTimeout:           true,
		KindRateLimited:       true,
		KindServerError:       true,
		KindAuthFailure:       false,
		KindStreamUnavailable: false,
		KindMalformedResponse: false,
		KindGeneric:           false,
	}

	for kind, want := range retryable {
		if got := (&Error{Kind: kind}).Retryable(); got != want {
			t.Errorf("%s: expected retryable=%v, got %v", kind, want, got)
		}
	}
}
