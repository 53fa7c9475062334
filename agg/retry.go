package agg

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/victhorio/arkchat/agg/core"
)

// RetryPolicy bounds SendWithRetry. The zero value makes a single attempt.
type RetryPolicy struct {
	// MaxAttempts counts the first attempt too.
	MaxAttempts int
	// InitialBackoff doubles on every retry, up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     4 * time.Second,
	}
}

// SendWithRetry is Send with retries for the failure kinds that may go away on their own:
// timeouts, rate limiting and server errors. The user message is appended exactly once, later
// attempts regenerate from the session as it is.
func SendWithRetry(ctx context.Context, c *Client, sess *Session, text string, policy RetryPolicy) (core.ChatResult, error) {
	r, err := c.Send(ctx, sess, text)

	for attempt := 1; attempt < policy.MaxAttempts; attempt++ {
		if err == nil {
			return r, nil
		}

		ce := core.Classify(err)
		if !ce.Retryable() {
			return r, err
		}

		wait := backoff(policy.InitialBackoff, policy.MaxBackoff, attempt-1)
		c.logger.Info("retrying chat request",
			"session", sess.ID(),
			"attempt", attempt+1,
			"kind", ce.Kind.String(),
			"backoff", wait,
		)

		select {
		case <-ctx.Done():
			return core.ChatResult{}, core.Classify(ctx.Err())
		case <-time.After(wait):
		}

		r, err = c.Regenerate(ctx, sess)
	}

	return r, err
}

func backoff(initial, maxWait time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	if maxWait <= 0 {
		maxWait = 2 * time.Second
	}

	d := time.Duration(float64(initial) * math.Pow(2, float64(attempt)))
	if d > maxWait {
		d = maxWait
	}

	return time.Duration(float64(d) * (1 + jitter(0.2)))
}

// jitter returns a value in [-maxFrac/2, maxFrac/2).
func jitter(maxFrac float64) float64 {
	if maxFrac <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return 0
	}
	return (float64(n.Int64())/1000.0)*maxFrac - maxFrac/2
}
