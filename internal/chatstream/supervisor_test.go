package chatstream

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeListener struct {
	calls     int
	errs      []error
	aliveFunc func() bool
}

func (f *fakeListener) Listen(ctx context.Context) error {
	i := f.calls
	f.calls++
	if i < len(f.errs) {
		return f.errs[i]
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeListener) Alive(ctx context.Context) bool {
	if f.aliveFunc == nil {
		return true
	}
	return f.aliveFunc()
}

func TestRunReturnsNilOnContextCancellation(t *testing.T) {
	listener := &fakeListener{}
	s := New(listener, Config{MaxReconnectAttempts: 5, HealthCheckInterval: 0, DrainTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v, want nil on cancellation", err)
	}
	if s.State() != Disconnected {
		t.Fatalf("State() = %v, want Disconnected", s.State())
	}
}

func TestHealthCheckForcesReconnectAndIsBoundedByAttempts(t *testing.T) {
	listener := &fakeListener{aliveFunc: func() bool { return false }}
	s := New(listener, Config{MaxReconnectAttempts: 1, HealthCheckInterval: 5 * time.Millisecond, DrainTimeout: time.Second})

	err := s.Run(context.Background())
	if !errors.Is(err, errHealthCheckFailed) {
		t.Fatalf("Run() error = %v, want errHealthCheckFailed", err)
	}
}

func TestShutdownRespectsDrainTimeout(t *testing.T) {
	listener := &fakeListener{}
	s := New(listener, Config{DrainTimeout: 20 * time.Millisecond})

	err := s.Shutdown(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatalf("Shutdown() error = nil, want deadline exceeded")
	}
	if s.State() != Disconnected {
		t.Fatalf("State() after Shutdown = %v, want Disconnected", s.State())
	}
}

func TestShutdownCompletesBeforeTimeout(t *testing.T) {
	listener := &fakeListener{}
	s := New(listener, Config{DrainTimeout: time.Second})

	err := s.Shutdown(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("Shutdown() error = %v, want nil", err)
	}
}
