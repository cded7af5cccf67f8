package retrypolicy

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayCapsAtMax(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Second, Cap: 4 * time.Second, JitterRange: [2]float64{1, 1}}
	d := p.Delay(10)
	if d != 4*time.Second {
		t.Fatalf("Delay(10) = %v, want capped at 4s", d)
	}
}

func TestRunSucceedsWithoutRetry(t *testing.T) {
	p := IngestPolicy()
	calls := 0
	err := p.Run(context.Background(), func(attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Cap: 2 * time.Millisecond, JitterRange: [2]float64{1, 1}}
	calls := 0
	wantErr := errors.New("boom")
	err := p.Run(context.Background(), func(attempt int) error {
		calls++
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Run() error = %v, want %v", err, wantErr)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := IngestPolicy()
	err := p.Run(ctx, func(attempt int) error {
		return errors.New("should not be called")
	})
	if err != context.Canceled {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
