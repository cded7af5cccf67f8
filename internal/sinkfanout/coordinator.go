// Package sinkfanout coordinates writes across one required primary
// sink and any number of best-effort secondary sinks.
package sinkfanout

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pfultibot/callpipe/internal/model"
	"github.com/pfultibot/callpipe/pkg/logging"
)

// PrimarySink is the required relational store and the only sink that
// receives raw messages. A failed AppendCall on it is recorded but does
// not by itself fail a fan-out call.
type PrimarySink interface {
	Name() string
	AppendCall(ctx context.Context, call *model.CryptoCall) error
	AppendRaw(ctx context.Context, raw *model.RawMessage) error
	UpdateRawClassification(ctx context.Context, channelID, messageID int64, isClassified bool, result string) error
	Close() error
}

// SecondarySink is a best-effort mirror. Its failure is logged but
// never aborts a fan-out call.
type SecondarySink interface {
	Name() string
	AppendCall(ctx context.Context, call *model.CryptoCall) error
	Close() error
}

// SinkHealth is a point-in-time snapshot of one sink's activation
// state and cumulative outcome counters.
type SinkHealth struct {
	Name         string
	Active       bool
	LastError    error
	SuccessCount int64
	FailureCount int64
}

// Coordinator fans normalized calls out to the primary and every
// active secondary, and routes raw messages to the primary alone.
type Coordinator struct {
	primary     PrimarySink
	secondaries []SecondarySink
	log         *logging.Logger

	mu     sync.Mutex
	health map[string]*SinkHealth
}

// New builds a Coordinator. Secondary sinks that failed to initialize
// should simply be omitted by the caller (they never reach here).
func New(primary PrimarySink, secondaries ...SecondarySink) *Coordinator {
	health := make(map[string]*SinkHealth, len(secondaries)+1)
	health[primary.Name()] = &SinkHealth{Name: primary.Name(), Active: true}
	for _, s := range secondaries {
		health[s.Name()] = &SinkHealth{Name: s.Name(), Active: true}
	}

	return &Coordinator{
		primary:     primary,
		secondaries: secondaries,
		log:         logging.GetDefault().Component("sinkfanout"),
		health:      health,
	}
}

// AppendCall writes the normalized call to the primary and every
// secondary sink, returning an error only if every sink — primary
// included — failed.
func (c *Coordinator) AppendCall(ctx context.Context, call *model.CryptoCall) error {
	fanoutID := uuid.NewString()
	successCount := 0
	var errs []string

	if err := c.primary.AppendCall(ctx, call); err != nil {
		c.recordFailure(c.primary.Name(), err)
		errs = append(errs, fmt.Sprintf("%s: %v", c.primary.Name(), err))
		c.log.Error("primary sink append failed", "fanout_id", fanoutID, "sink", c.primary.Name(), "error", err)
	} else {
		successCount++
		c.recordSuccess(c.primary.Name())
	}

	for _, s := range c.secondaries {
		if err := s.AppendCall(ctx, call); err != nil {
			c.recordFailure(s.Name(), err)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			c.log.Warn("secondary sink append failed", "fanout_id", fanoutID, "sink", s.Name(), "error", err)
			continue
		}
		successCount++
		c.recordSuccess(s.Name())
	}

	total := 1 + len(c.secondaries)
	token := "unknown"
	if call.TokenName != nil {
		token = *call.TokenName
	}
	c.log.Info("call stored", "fanout_id", fanoutID, "token", token, "succeeded", successCount, "of", total)

	if successCount == 0 {
		return fmt.Errorf("all sinks failed: %s", joinErrs(errs))
	}
	return nil
}

// AppendRaw routes a raw message to the primary sink only; secondaries
// only ever see normalized calls.
func (c *Coordinator) AppendRaw(ctx context.Context, raw *model.RawMessage) error {
	if err := c.primary.AppendRaw(ctx, raw); err != nil {
		c.recordFailure(c.primary.Name(), err)
		return fmt.Errorf("primary sink raw append failed: %w", err)
	}
	c.recordSuccess(c.primary.Name())
	return nil
}

// UpdateRawClassification routes the classify/parse outcome to the
// primary sink only, like AppendRaw.
func (c *Coordinator) UpdateRawClassification(ctx context.Context, channelID, messageID int64, isClassified bool, result string) error {
	if err := c.primary.UpdateRawClassification(ctx, channelID, messageID, isClassified, result); err != nil {
		c.recordFailure(c.primary.Name(), err)
		return fmt.Errorf("primary sink classification update failed: %w", err)
	}
	c.recordSuccess(c.primary.Name())
	return nil
}

// Status returns a snapshot of every sink's health.
func (c *Coordinator) Status() []SinkHealth {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]SinkHealth, 0, len(c.health))
	out = append(out, *c.health[c.primary.Name()])
	for _, s := range c.secondaries {
		out = append(out, *c.health[s.Name()])
	}
	return out
}

// Close closes every sink independently, collecting but never raising
// errors.
func (c *Coordinator) Close() error {
	var errs []string

	if err := c.primary.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", c.primary.Name(), err))
		c.log.Error("error closing primary sink", "sink", c.primary.Name(), "error", err)
	}

	for _, s := range c.secondaries {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			c.log.Error("error closing secondary sink", "sink", s.Name(), "error", err)
		}
	}

	if len(errs) > 0 {
		c.log.Warn("coordinator close completed with errors", "errors", joinErrs(errs))
	}
	return nil
}

func (c *Coordinator) recordSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.health[name]
	h.SuccessCount++
	h.Active = true
	h.LastError = nil
}

func (c *Coordinator) recordFailure(name string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.health[name]
	h.FailureCount++
	h.LastError = err
	h.Active = false
}

func joinErrs(errs []string) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e
	}
	return out
}
