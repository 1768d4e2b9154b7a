package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryWithBackoff_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryWithBackoff_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	authErr := &Error{Kind: KindAuth, Message: "Bad credentials"}

	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return authErr
	})

	if !errors.Is(err, authErr) {
		t.Errorf("error = %v, want the auth error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on auth errors)", calls)
	}
}

func TestRetryWithBackoff_RetriesNetworkErrors(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &Error{Kind: KindNetwork, Message: "connection reset"}
		}
		return nil
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryWithBackoff_Exhaustion(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), func() error {
		calls++
		return &Error{Kind: KindNetwork, Message: "still down"}
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("error = %v, want ErrRetryExhausted", err)
	}
	if calls != DefaultRetryConfig().MaxAttempts {
		t.Errorf("calls = %d, want %d", calls, DefaultRetryConfig().MaxAttempts)
	}
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- RetryWithBackoff(ctx, func() error {
			calls++
			return &Error{Kind: KindNetwork, Message: "down"}
		})
	}()

	// Cancel while the helper is waiting out the first backoff.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, ErrContextCancelled) {
			t.Errorf("error = %v, want ErrContextCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestRetryConfigForKind(t *testing.T) {
	if got := RetryConfigForKind(KindRateLimited).InitialBackoff; got != 5*time.Second {
		t.Errorf("rate limited initial backoff = %v, want 5s", got)
	}
	if got := RetryConfigForKind(KindNetwork).MaxBackoff; got != 10*time.Second {
		t.Errorf("network max backoff = %v, want 10s", got)
	}
	if got := RetryConfigForKind(KindParse); got != DefaultRetryConfig() {
		t.Errorf("parse config = %+v, want default", got)
	}
}
