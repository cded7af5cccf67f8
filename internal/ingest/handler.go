// Package ingest runs the per-message pipeline: admission, raw
// persistence, classification, parsing, linking, and fan-out, with
// per-channel rate limiting and per-message retry.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pfultibot/callpipe/internal/config"
	"github.com/pfultibot/callpipe/internal/link"
	"github.com/pfultibot/callpipe/internal/model"
	"github.com/pfultibot/callpipe/internal/parse"
	"github.com/pfultibot/callpipe/internal/retrypolicy"
	"github.com/pfultibot/callpipe/pkg/logging"
	"github.com/pfultibot/callpipe/pkg/telegramx"
)

// Sink is the fan-out surface the handler writes to. sinkfanout.Coordinator
// satisfies it.
type Sink interface {
	AppendRaw(ctx context.Context, raw *model.RawMessage) error
	AppendCall(ctx context.Context, call *model.CryptoCall) error
	UpdateRawClassification(ctx context.Context, channelID, messageID int64, isClassified bool, result string) error
}

// Handler runs the ingest pipeline for one stream's worth of events.
type Handler struct {
	channels map[int64]config.ChannelConfig
	sink     Sink
	lookup   link.Lookup
	retry    retrypolicy.Policy
	log      *logging.Logger
	stats    *statsTracker

	rateMu   sync.Mutex
	lastSeen map[int64]time.Time
}

// NewHandler builds a Handler. channels indexes monitored channels by
// their chat ID; channels absent from the map are never admitted.
func NewHandler(channels []config.ChannelConfig, sink Sink, lookup link.Lookup) *Handler {
	byID := make(map[int64]config.ChannelConfig, len(channels))
	for _, c := range channels {
		byID[c.ChannelID] = c
	}

	return &Handler{
		channels: byID,
		sink:     sink,
		lookup:   lookup,
		retry:    retrypolicy.IngestPolicy(),
		log:      logging.GetDefault().Component("ingest"),
		stats:    newStatsTracker(),
		lastSeen: make(map[int64]time.Time),
	}
}

// HandleEvent runs one event through the full pipeline: admission,
// raw persist, and a retried classify/parse/link/fan-out bundle.
func (h *Handler) HandleEvent(ctx context.Context, ev telegramx.Event) error {
	channel, ok := h.channels[ev.ChatID]
	if !ok || !channel.IsActive {
		h.log.Debug("message from non-admitted channel dropped", "chat_id", ev.ChatID)
		return nil
	}

	h.stats.record(ev.ChatID, func(s *channelStats) { s.Received++ })

	raw := &model.RawMessage{
		MessageID:   ev.MessageID,
		ChannelID:   ev.ChatID,
		ChannelName: channel.ChannelName,
		MessageText: ev.Text,
		MessageDate: ev.Date,
		ReplyToID:   ev.ReplyToID,
	}

	if err := h.sink.AppendRaw(ctx, raw); err != nil {
		h.stats.record(ev.ChatID, func(s *channelStats) { s.Errors++ })
		return fmt.Errorf("persist raw message: %w", err)
	}

	err := h.retry.Run(ctx, func(attempt int) error {
		return h.process(ctx, channel, raw)
	})
	if err != nil {
		h.stats.record(ev.ChatID, func(s *channelStats) { s.Errors++ })
		h.log.Error("failed to process message after retries", "channel", channel.ChannelName, "message_id", ev.MessageID, "error", err)
	}

	h.applyRateLimit(ctx, channel)

	return err
}

// process runs classify, parse, link & inherit, and fan-out for one
// raw message. It is the unit retried on transient failure.
func (h *Handler) process(ctx context.Context, channel config.ChannelConfig, raw *model.RawMessage) error {
	if !looksLikeCall(raw.MessageText) {
		return nil
	}
	h.stats.record(raw.ChannelID, func(s *channelStats) { s.Classified++ })

	parsed, ok := parse.Parse(raw.MessageText)
	if !ok {
		h.log.Debug("no parser format matched", "channel_id", raw.ChannelID, "message_id", raw.MessageID)
		h.recordClassification(ctx, raw, false, "no_match")
		return nil
	}
	h.stats.record(raw.ChannelID, func(s *channelStats) { s.Parsed++ })

	linkResult, err := link.Link(ctx, parsed, raw, h.lookup)
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if linkResult.ParentID != nil {
		h.stats.record(raw.ChannelID, func(s *channelStats) { s.Linked++ })
	}

	call := buildCall(channel, raw, parsed, linkResult)

	if err := h.sink.AppendCall(ctx, call); err != nil {
		return fmt.Errorf("fan-out: %w", err)
	}
	h.stats.record(raw.ChannelID, func(s *channelStats) { s.Stored++ })
	h.recordClassification(ctx, raw, true, "parsed")

	return nil
}

// recordClassification stamps the raw row with the classify/parse
// outcome for observability. A failure here is logged, not propagated:
// it must never cause a successfully-stored call to be retried.
func (h *Handler) recordClassification(ctx context.Context, raw *model.RawMessage, isClassified bool, result string) {
	if err := h.sink.UpdateRawClassification(ctx, raw.ChannelID, raw.MessageID, isClassified, result); err != nil {
		h.log.Warn("failed to record classification outcome on raw row",
			"channel_id", raw.ChannelID, "message_id", raw.MessageID, "error", err)
	}
}

func buildCall(channel config.ChannelConfig, raw *model.RawMessage, parsed *model.ParsedMessage, linkResult link.Result) *model.CryptoCall {
	call := &model.CryptoCall{
		MessageID:            raw.MessageID,
		ChannelID:            raw.ChannelID,
		ChannelName:          channel.ChannelName,
		MessageType:          parsed.MessageType,
		TokenName:            parsed.TokenName,
		ContractAddress:      parsed.ContractAddress,
		EntryCap:             parsed.EntryCap,
		PeakCap:              parsed.PeakCap,
		XGain:                parsed.XGain,
		VIPX:                 parsed.VIPX,
		TimeToPeak:           parsed.TimeToPeak,
		LinkedCryptoCallID:   linkResult.ParentID,
		ClassificationResult: "parsed",
		Timestamp:            raw.MessageDate,
	}

	if call.TokenName == nil {
		call.TokenName = linkResult.TokenName
	}
	if call.ContractAddress == nil {
		call.ContractAddress = linkResult.ContractAddress
	}

	return call
}

// applyRateLimit sleeps the remainder of 60/RateLimit seconds since
// this channel was last processed, so a fast-posting channel cannot
// starve the rest of the pipeline.
func (h *Handler) applyRateLimit(ctx context.Context, channel config.ChannelConfig) {
	if channel.RateLimit <= 0 {
		return
	}

	interval := time.Duration(float64(time.Minute) / channel.RateLimit)

	h.rateMu.Lock()
	last, ok := h.lastSeen[channel.ChannelID]
	h.lastSeen[channel.ChannelID] = time.Now()
	h.rateMu.Unlock()

	if !ok {
		return
	}

	wait := interval - time.Since(last)
	if wait <= 0 {
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

// Stats returns a snapshot of one channel's counters.
func (h *Handler) Stats(channelID int64) channelStats {
	return h.stats.Snapshot(channelID)
}
