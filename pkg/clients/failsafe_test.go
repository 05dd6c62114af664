package clients

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "test",
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  4,
	})

	failing := errors.New("downstream unavailable")
	for i := 0; i < 4; i++ {
		_ = cb.Call(func() error { return failing })
	}

	if !cb.IsOpen() {
		t.Fatalf("expected circuit to be open after repeated failures, state=%s", cb.State())
	}
}

func TestCircuitBreaker_StaysClosedOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())
	for i := 0; i < 20; i++ {
		if err := cb.Call(func() error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}
}

func TestRetryForever_SucceedsAfterFailures(t *testing.T) {
	policy := NewConnectRetryPolicy(time.Millisecond, 5*time.Millisecond)

	attempts := 0
	err := RetryForever(context.Background(), policy, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connect refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryForever_ContextCancelled(t *testing.T) {
	policy := NewConnectRetryPolicy(10*time.Millisecond, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := RetryForever(ctx, policy, func() error {
		return errors.New("connect refused")
	})
	if err == nil {
		t.Fatal("expected error after context cancellation")
	}
}

func TestDefaultShouldRetry(t *testing.T) {
	if !DefaultShouldRetry(nil, errors.New("dial error")) {
		t.Fatal("expected retry on network error")
	}
	if !DefaultShouldRetry(&http.Response{StatusCode: 503}, nil) {
		t.Fatal("expected retry on 503")
	}
	if DefaultShouldRetry(&http.Response{StatusCode: 400}, nil) {
		t.Fatal("did not expect retry on 400")
	}
}

func TestExecuteHTTP_RetriesThenSucceeds(t *testing.T) {
	exec := NewHTTPExecutor(HTTPExecutorConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	})

	attempts := 0
	resp, err := ExecuteHTTP(context.Background(), exec, func() (*http.Response, error) {
		attempts++
		if attempts < 2 {
			return &http.Response{StatusCode: 502}, nil
		}
		return &http.Response{StatusCode: 200}, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}
