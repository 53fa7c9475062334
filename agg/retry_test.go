package agg

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/victhorio/arkchat/agg/core"
)

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestSendWithRetryRecovers(t *testing.T) {
	var calls atomic.Int32
	srv, reqs := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, completion("finally", ""))
	})

	c := newTestClient(t, srv, "chat")
	sess := NewSession()

	r, err := SendWithRetry(context.Background(), c, sess, "Hi", fastRetryPolicy())
	if err != nil {
		t.Fatalf("SendWithRetry failed: %v", err)
	}
	if r.Content != "finally" {
		t.Fatalf("expected finally, got %q", r.Content)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 upstream calls, got %d", n)
	}

	// both attempts carried exactly one user message
	for _n := 0; _n < 2; _n++ {
		if req := <-reqs; len(req.Messages) != 1 {
			t.Fatalf("expected a single user message per request, got %+v", req.Messages)
		}
	}

	msgs := sess.Snapshot()
	if len(msgs) != 2 || msgs[0] != core.NewMsgUser("Hi") || msgs[1] != core.NewMsgAssistant("finally") {
		t.Fatalf("unexpected history: %+v", msgs)
	}
}

func TestSendWithRetryStopsOnPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv, _ := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	c := newTestClient(t, srv, "chat")

	_, err := SendWithRetry(context.Background(), c, NewSession(), "Hi", fastRetryPolicy())
	if !core.IsKind(err, core.KindAuthFailure) {
		t.Fatalf("expected auth failure, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected a single upstream call, got %d", n)
	}
}

func TestSendWithRetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv, _ := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	c := newTestClient(t, srv, "chat")
	sess := NewSession()

	_, err := SendWithRetry(context.Background(), c, sess, "Hi", fastRetryPolicy())
	if !core.IsKind(err, core.KindRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if n := calls.Load(); n != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", n)
	}
	if n := sess.Len(); n != 1 {
		t.Fatalf("expected only the user message, got %d messages", n)
	}
}

func TestSendWithRetryZeroPolicy(t *testing.T) {
	var calls atomic.Int32
	srv, _ := upstream(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusBadGateway)
	})

	c := newTestClient(t, srv, "chat")

	if _, err := SendWithRetry(context.Background(), c, NewSession(), "Hi", RetryPolicy{}); err == nil {
		t.Fatalf("expected an error")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected a single attempt with the zero policy, got %d", n)
	}
}

func TestBackoff(t *testing.T) {
	for attempt := 0; attempt < 6; attempt++ {
		d := backoff(100*time.Millisecond, time.Second, attempt)
		base := min(100*time.Millisecond<<attempt, time.Second)

		lo := time.Duration(float64(base) * 0.9)
		hi := time.Duration(float64(base) * 1.1)
		if d < lo || d > hi {
			t.Fatalf("attempt %d: %s outside [%s, %s]", attempt, d, lo, hi)
		}
	}
}
