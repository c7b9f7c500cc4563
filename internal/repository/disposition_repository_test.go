package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }

func newTestRepository() *DispositionRepository {
	return &DispositionRepository{
		logger:         zap.NewNop(),
		retryAttempts:  3,
		initialBackoff: time.Millisecond,
		maxBackoff:     5 * time.Millisecond,
	}
}

func TestRetrySucceedsAfterTransientError(t *testing.T) {
	repo := newTestRepository()

	calls := 0
	err := repo.executeWithRetry(context.Background(), "repository.test", "s1", func() error {
		calls++
		if calls < 3 {
			return timeoutError{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	repo := newTestRepository()

	calls := 0
	permanent := errors.New("duplicate key value")
	err := repo.executeWithRetry(context.Background(), "repository.test", "s1", func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("err = %v, want wrapped permanent error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsWhenContextCancelled(t *testing.T) {
	repo := newTestRepository()
	repo.initialBackoff = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := repo.executeWithRetry(ctx, "repository.test", "s1", func() error {
		calls++
		return timeoutError{}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 before cancellation", calls)
	}
}

func TestIsTransientError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"timeout interface", timeoutError{}, true},
		{"wrapped timeout", errors.Join(errors.New("outer"), timeoutError{}), true},
		{"plain error", errors.New("constraint violation"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransientError(tc.err); got != tc.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
