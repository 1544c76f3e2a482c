package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/kbukum/planengine/errors"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastRetryConfig(3), func() (int, error) {
		calls++
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != 42 || calls != 1 {
		t.Fatalf("expected 42 after 1 call, got %d after %d", result, calls)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	result, err := Retry(context.Background(), fastRetryConfig(3), func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 3 {
		t.Fatalf("expected ok after 3 calls, got %q after %d", result, calls)
	}
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	_, err := Retry(context.Background(), fastRetryConfig(3), func() (int, error) {
		calls++
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected underlying error surfaced, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	_, err := Retry(ctx, fastRetryConfig(3), func() (int, error) {
		calls++
		return 0, errors.New("nope")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected no attempts after cancel, got %d", calls)
	}
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	cfg := fastRetryConfig(5)
	cfg.RetryIf = RetryIfTransient

	calls := 0
	_, err := Retry(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, apperrors.NotFound("plan", "p1")
	})
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected NotFound surfaced, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt for non-retryable error, got %d", calls)
	}
}

func TestRetryIfTransient(t *testing.T) {
	if !RetryIfTransient(apperrors.DatabaseError(errors.New("deadlock"))) {
		t.Fatal("database errors should be retried")
	}
	if RetryIfTransient(apperrors.NotFound("node", "n1")) {
		t.Fatal("NotFound must not be retried")
	}
	if RetryIfTransient(context.Canceled) {
		t.Fatal("cancellation must not be retried")
	}
	if RetryIfTransient(errors.New("plain")) {
		t.Fatal("untagged errors must not be retried under the store policy")
	}
}

func TestRetry_OnRetryCallback(t *testing.T) {
	cfg := fastRetryConfig(3)
	var attempts []int
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		attempts = append(attempts, attempt)
	}

	calls := 0
	_, _ = Retry(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, errors.New("always")
	})
	if len(attempts) != 2 {
		t.Fatalf("expected OnRetry before each retry (2), got %d", len(attempts))
	}
}

func TestRetryFunc(t *testing.T) {
	calls := 0
	err := RetryFunc(context.Background(), fastRetryConfig(2), func() error {
		calls++
		if calls == 1 {
			return errors.New("once")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestCalculateBackoff_CapsAtMax(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  10.0,
	}
	got := calculateBackoff(5, cfg)
	if got > cfg.MaxBackoff {
		t.Fatalf("backoff %v exceeds max %v", got, cfg.MaxBackoff)
	}
}

func TestStoreRetryConfig(t *testing.T) {
	cfg := StoreRetryConfig()
	if cfg.MaxAttempts != 3 {
		t.Fatalf("expected bounded budget of 3, got %d", cfg.MaxAttempts)
	}
	if cfg.RetryIf == nil {
		t.Fatal("expected transient-only predicate")
	}
}
