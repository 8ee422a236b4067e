package provider

import (
	"context"
	"errors"
	"iter"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kernelloop/assistant/pkg/errs"
	"github.com/kernelloop/assistant/pkg/logging"
)

// RetryPolicy classifies and retries transient failures from an adapter's
// Send call. Events are yielded live as they arrive so the caller still
// sees incremental deltas; a retry is only attempted when the failing
// attempt produced no events at all, since re-issuing after streaming
// partial output would duplicate or corrupt the assistant message the
// caller has already started accumulating.
type RetryPolicy struct {
	MaxAttempts         int
	OverloadMaxAttempts int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         5,
		OverloadMaxAttempts: 3,
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         20 * time.Second,
	}
}

// Send drives p.Send with retry, streaming events live and re-issuing the
// full request only when a retriable error surfaces before any event has
// reached the caller.
func (rp RetryPolicy) Send(ctx context.Context, p Provider, req Request) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		attempt := 0

		for {
			attempt++

			var attemptErr error
			var retriable bool
			var overload bool
			yielded := false

			for ev, err := range p.Send(ctx, req) {
				if err != nil {
					attemptErr = err
					break
				}

				if ev.Type == EventError {
					attemptErr = ev.Err
					retriable = ev.Retriable
					overload = ev.ErrKind == "overload"
					break
				}

				yielded = true
				if !yield(ev, nil) {
					return
				}
			}

			if attemptErr == nil {
				return
			}

			var e *errs.Error
			if errors.As(attemptErr, &e) {
				retriable = retriable || e.Retriable
				overload = overload || e.ErrKind == "overload"
			}

			// A partial message has already reached the caller this attempt;
			// retrying now would duplicate or corrupt it, so the failure is
			// terminal regardless of retriability.
			if yielded {
				yield(Event{}, attemptErr)
				return
			}

			maxAttempts := rp.MaxAttempts
			if overload {
				maxAttempts = rp.OverloadMaxAttempts
			}

			if !retriable || attempt >= maxAttempts {
				yield(Event{}, attemptErr)
				return
			}

			wait := rp.backoffFor(attempt, overload)

			logging.From(ctx).Debug("retrying provider send",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait))

			select {
			case <-ctx.Done():
				yield(Event{}, errs.Cancelled("provider retry cancelled"))
				return
			case <-time.After(wait):
			}
		}
	}
}

func (rp RetryPolicy) backoffFor(attempt int, overload bool) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rp.InitialInterval
	b.MaxInterval = rp.MaxInterval

	if overload {
		b.InitialInterval = rp.InitialInterval * 2
	}

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = b.NextBackOff()
	}

	if d == backoff.Stop {
		return rp.MaxInterval
	}

	return d
}

// ClassifyHTTPStatus maps a status code to (kind, retriable) for adapters
// translating vendor HTTP responses into Event{Type: EventError}. A status
// of 0 means the request never reached the server (dial timeout, connection
// refused, DNS failure) and is classified as a retriable network failure,
// same as a 5xx.
func ClassifyHTTPStatus(status int) (kind string, retriable bool) {
	switch {
	case status == 0:
		return "network", true
	case status == 429:
		return "rate_limited", true
	case status == 529 || status == 503:
		return "overload", true
	case status >= 500:
		return "server_error", true
	case status == 401 || status == 403:
		return "auth", false
	case status >= 400:
		return "structural", false
	default:
		return "unknown", false
	}
}
