// Package chatstream drives the stream source's connection lifecycle:
// connect, authenticate, listen, reconnect with backoff on transient
// failure, and drain on shutdown.
package chatstream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pfultibot/callpipe/internal/retrypolicy"
	"github.com/pfultibot/callpipe/pkg/logging"
	"github.com/pfultibot/callpipe/pkg/telegramx"
)

// Listener is the narrow contract the supervisor drives. telegramx.Client
// satisfies it.
type Listener interface {
	Listen(ctx context.Context) error

	// Alive reports whether the connection is still responsive. The
	// health check calls this on a fixed interval while Listening; a
	// false result forces a reconnect.
	Alive(ctx context.Context) bool
}

// errHealthCheckFailed is returned by listenOnce when the periodic
// health check finds the connection dead and forces a reconnect.
var errHealthCheckFailed = errors.New("chatstream: health check found connection dead")

// Config configures a Supervisor.
type Config struct {
	MaxReconnectAttempts int
	HealthCheckInterval  time.Duration
	DrainTimeout         time.Duration
}

// DefaultConfig matches the stream supervisor's standard schedule: up
// to 5 reconnect attempts, a health check every 5 minutes, and a
// 30-second bounded drain on shutdown.
func DefaultConfig() Config {
	return Config{
		MaxReconnectAttempts: 5,
		HealthCheckInterval:  5 * time.Minute,
		DrainTimeout:         30 * time.Second,
	}
}

// Supervisor owns the connection state machine around a Listener.
type Supervisor struct {
	listener Listener
	cfg      Config
	log      *logging.Logger

	mu    sync.Mutex
	state State
}

// New builds a Supervisor around listener.
func New(listener Listener, cfg Config) *Supervisor {
	return &Supervisor{
		listener: listener,
		cfg:      cfg,
		log:      logging.GetDefault().Component("chatstream"),
		state:    Disconnected,
	}
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.log.Debug("state transition", "state", st.String())
}

// Run drives the connect/listen/reconnect loop until ctx is cancelled
// or a non-retryable authentication error occurs. It returns nil on a
// clean, caller-requested shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	attempt := 0
	reconnectPolicy := retrypolicy.ReconnectPolicy()
	reconnectPolicy.MaxAttempts = s.cfg.MaxReconnectAttempts

	for {
		if ctx.Err() != nil {
			s.setState(Disconnected)
			return nil
		}

		s.setState(Connecting)
		err := s.listenOnce(ctx)

		if err == nil || errors.Is(err, context.Canceled) {
			s.setState(Disconnected)
			return nil
		}

		if authErr, ok := telegramx.AsAuthError(err); ok {
			s.setState(Disconnected)
			s.log.Error("non-retryable authentication error, giving up", "error", authErr.Error())
			return authErr
		}

		if floodErr, ok := telegramx.AsFloodWait(err); ok {
			s.log.Warn("flood wait, honoring server-requested delay", "wait", floodErr.Wait)
			select {
			case <-ctx.Done():
				s.setState(Disconnected)
				return nil
			case <-time.After(floodErr.Wait):
			}
			continue
		}

		if attempt >= reconnectPolicy.MaxAttempts {
			s.setState(Disconnected)
			s.log.Error("exhausted reconnect attempts", "attempts", attempt, "error", err)
			return err
		}

		delay := reconnectPolicy.Delay(attempt)
		s.log.Warn("transient stream error, reconnecting", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			s.setState(Disconnected)
			return nil
		case <-time.After(delay):
		}
		attempt++
	}
}

// listenOnce authenticates, transitions through Authenticated and
// Listening, and runs a background health check alongside the
// listener. If the health check finds the connection dead it cancels
// the listen context, forcing Listen to return so Run can reconnect;
// a plain cancellation of the outer ctx (shutdown) still surfaces as
// ctx.Err() to the caller.
func (s *Supervisor) listenOnce(ctx context.Context) error {
	s.setState(Authenticated)
	s.setState(Listening)

	listenCtx, forceReconnect := context.WithCancel(ctx)
	defer forceReconnect()

	lost := make(chan error, 1)
	go s.runHealthCheck(listenCtx, forceReconnect, lost)

	err := s.listener.Listen(listenCtx)

	select {
	case herr := <-lost:
		return herr
	default:
		return err
	}
}

// runHealthCheck polls Listener.Alive every HealthCheckInterval while
// ctx is live. On the first failed check it reports errHealthCheckFailed
// on lost and calls forceReconnect to unblock Listen.
func (s *Supervisor) runHealthCheck(ctx context.Context, forceReconnect context.CancelFunc, lost chan<- error) {
	if s.cfg.HealthCheckInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.listener.Alive(ctx) {
				s.log.Debug("health check passed", "state", s.State().String())
				continue
			}
			s.log.Warn("health check failed, forcing reconnect", "state", s.State().String())
			lost <- errHealthCheckFailed
			forceReconnect()
			return
		}
	}
}

// Shutdown transitions to Draining and waits up to DrainTimeout for
// drainFn (typically flushing in-flight handler work) to finish.
func (s *Supervisor) Shutdown(ctx context.Context, drainFn func(context.Context) error) error {
	s.setState(Draining)

	drainCtx, cancel := context.WithTimeout(ctx, s.cfg.DrainTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- drainFn(drainCtx) }()

	select {
	case err := <-done:
		s.setState(Disconnected)
		return err
	case <-drainCtx.Done():
		s.setState(Disconnected)
		return drainCtx.Err()
	}
}
