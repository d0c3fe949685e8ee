package retry

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"shortcast/internal/services"
)

func TestDelayDoublesAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 6, BaseDelay: time.Second, Multiplier: 2, MaxDelay: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, expected := range want {
		if got := p.Delay(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %s, got %s", i+1, expected, got)
		}
	}
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	var slept []time.Duration
	p := DefaultPolicy()
	p.Sleeper = func(d time.Duration) { slept = append(slept, d) }

	calls := 0
	err := Do(context.Background(), p, "generate", func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return services.Wrap(services.ErrTransient, "generate", "render", "busy", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected sleeps %v", slept)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := DefaultPolicy()
	p.Sleeper = func(time.Duration) { t.Fatal("permanent errors must not sleep") }

	calls := 0
	err := Do(context.Background(), p, "upload", func(context.Context, int) error {
		calls++
		return services.Wrap(services.ErrPermanent, "upload", "insert", "rejected", nil)
	})
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestDoReportsExhaustion(t *testing.T) {
	p := DefaultPolicy()
	p.Sleeper = func(time.Duration) {}
	var observed []int
	p.OnRetry = func(attempt int, _ time.Duration, _ error) { observed = append(observed, attempt) }

	err := Do(context.Background(), p, "notify", func(context.Context, int) error {
		return services.Wrap(services.ErrTransient, "notify", "post", "unavailable", nil)
	})
	if err == nil || !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected wrapped transient marker, got %v", err)
	}
	if len(observed) != 2 {
		t.Fatalf("expected 2 retry callbacks, got %v", observed)
	}
}

func TestDoHonorsRetryAfter(t *testing.T) {
	var slept []time.Duration
	p := DefaultPolicy()
	p.MaxAttempts = 2
	p.Sleeper = func(d time.Duration) { slept = append(slept, d) }

	calls := 0
	_ = Do(context.Background(), p, "upload", func(context.Context, int) error {
		calls++
		if calls == 1 {
			return services.Wrap(services.ErrTransient, "upload", "insert", "throttled", &services.HTTPStatusError{
				Service:    "publisher",
				StatusCode: http.StatusTooManyRequests,
				RetryAfter: 7 * time.Second,
			})
		}
		return nil
	})
	if len(slept) != 1 || slept[0] != 7*time.Second {
		t.Fatalf("expected Retry-After delay, got %v", slept)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.Sleeper = func(time.Duration) { cancel() }

	err := Do(ctx, p, "generate", func(context.Context, int) error {
		return services.Wrap(services.ErrTransient, "generate", "render", "busy", nil)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
