package provider

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/kernelloop/assistant/pkg/errs"
)

// scriptedProvider replays fixed attempts, one []Event or error per call to
// Send, letting a test drive RetryPolicy through a known number of retries.
type scriptedProvider struct {
	attempts [][]Event
	errs     []error
	calls    int
}

func (p *scriptedProvider) Send(ctx context.Context, req Request) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		idx := p.calls
		p.calls++

		for _, ev := range p.attempts[idx] {
			if !yield(ev, nil) {
				return
			}
		}

		if idx < len(p.errs) && p.errs[idx] != nil {
			yield(Event{}, p.errs[idx])
		}
	}
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		OverloadMaxAttempts: 2,
		InitialInterval:     time.Millisecond,
		MaxInterval:         2 * time.Millisecond,
	}
}

func TestRetryPolicyRetriesTransientTransportError(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{errs.Transport("rate limited", nil, "rate_limited", true)},
		attempts: [][]Event{
			nil,
			{{Type: EventTextDelta, Text: "ok"}, {Type: EventTurnEnd}},
		},
	}

	rp := fastPolicy()

	var text string
	var gotErr error
	for ev, err := range rp.Send(context.Background(), p, Request{}) {
		if err != nil {
			gotErr = err
			continue
		}
		if ev.Type == EventTextDelta {
			text += ev.Text
		}
	}

	if gotErr != nil {
		t.Fatalf("expected the retriable error to be absorbed by retry, got %v", gotErr)
	}
	if text != "ok" {
		t.Fatalf("expected the successful second attempt's text, got %q", text)
	}
	if p.calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls), got %d", p.calls)
	}
}

func TestRetryPolicyGivesUpOnNonRetriableError(t *testing.T) {
	p := &scriptedProvider{
		errs:     []error{errs.Transport("bad auth", nil, "auth", false)},
		attempts: [][]Event{nil},
	}

	rp := fastPolicy()

	var gotErr error
	for _, err := range rp.Send(context.Background(), p, Request{}) {
		if err != nil {
			gotErr = err
		}
	}

	if gotErr == nil {
		t.Fatal("expected the non-retriable error to surface immediately")
	}
	if p.calls != 1 {
		t.Fatalf("expected no retry attempts for a non-retriable error, got %d calls", p.calls)
	}
}

func TestRetryPolicyDoesNotRetryAfterPartialStream(t *testing.T) {
	p := &scriptedProvider{
		errs: []error{errs.Transport("dropped mid-stream", nil, "server_error", true)},
		attempts: [][]Event{
			{{Type: EventTextDelta, Text: "partial"}},
		},
	}

	rp := fastPolicy()

	var text string
	var gotErr error
	for ev, err := range rp.Send(context.Background(), p, Request{}) {
		if err != nil {
			gotErr = err
			continue
		}
		if ev.Type == EventTextDelta {
			text += ev.Text
		}
	}

	if text != "partial" {
		t.Fatalf("expected the partial delta to have been yielded live, got %q", text)
	}
	if gotErr == nil {
		t.Fatal("expected the error to surface as terminal once output has streamed")
	}
	if p.calls != 1 {
		t.Fatalf("expected no retry once an event has already reached the caller, got %d calls", p.calls)
	}
}

func TestRetryPolicyStopsAtMaxAttempts(t *testing.T) {
	always := errs.Transport("still overloaded", nil, "overload", true)
	p := &scriptedProvider{
		errs:     []error{always, always},
		attempts: [][]Event{nil, nil},
	}

	rp := fastPolicy()

	var gotErr error
	for _, err := range rp.Send(context.Background(), p, Request{}) {
		if err != nil {
			gotErr = err
		}
	}

	if gotErr == nil {
		t.Fatal("expected the final failed attempt to surface an error")
	}
	var e *errs.Error
	if !errors.As(gotErr, &e) || e.Kind != errs.KindTransport {
		t.Fatalf("expected a transport error, got %v", gotErr)
	}
	if p.calls != rp.OverloadMaxAttempts {
		t.Fatalf("expected exactly OverloadMaxAttempts (%d) calls for an overload error, got %d", rp.OverloadMaxAttempts, p.calls)
	}
}
