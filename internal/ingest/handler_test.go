package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/pfultibot/callpipe/internal/config"
	"github.com/pfultibot/callpipe/internal/model"
	"github.com/pfultibot/callpipe/pkg/telegramx"
)

type fakeSink struct {
	raws  []*model.RawMessage
	calls []*model.CryptoCall
}

func (f *fakeSink) AppendRaw(_ context.Context, raw *model.RawMessage) error {
	f.raws = append(f.raws, raw)
	return nil
}

func (f *fakeSink) AppendCall(_ context.Context, call *model.CryptoCall) error {
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeSink) UpdateRawClassification(_ context.Context, _, _ int64, _ bool, _ string) error {
	return nil
}

type fakeLookup struct {
	discoveries map[string]*model.CryptoCall
}

func (f *fakeLookup) FindByReply(context.Context, int64, int64) (*model.CryptoCall, error) { return nil, nil }
func (f *fakeLookup) FindByContract(_ context.Context, _ int64, addr string, _ time.Time) (*model.CryptoCall, error) {
	return f.discoveries[addr], nil
}
func (f *fakeLookup) FindByTokenName(_ context.Context, _ int64, name string, _ time.Time) (*model.CryptoCall, error) {
	return f.discoveries[name], nil
}

func testChannels() []config.ChannelConfig {
	return []config.ChannelConfig{
		{ChannelID: -100, ChannelName: "alpha-calls", IsActive: true, RateLimit: 0},
	}
}

func TestHandleEventDropsNonAdmittedChannel(t *testing.T) {
	sink := &fakeSink{}
	h := NewHandler(testChannels(), sink, &fakeLookup{})

	ev := telegramx.Event{ChatID: -999, MessageID: 1, Text: "hello", Date: time.Now()}
	if err := h.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if len(sink.raws) != 0 {
		t.Fatalf("expected no raw persisted for non-admitted channel, got %d", len(sink.raws))
	}
}

func TestHandleEventPersistsRawEvenWhenNoMatch(t *testing.T) {
	sink := &fakeSink{}
	h := NewHandler(testChannels(), sink, &fakeLookup{})

	ev := telegramx.Event{ChatID: -100, MessageID: 1, Text: "good morning everyone", Date: time.Now()}
	if err := h.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if len(sink.raws) != 1 {
		t.Fatalf("expected raw message persisted, got %d", len(sink.raws))
	}
	if len(sink.calls) != 0 {
		t.Fatalf("expected no normalized call for unparseable text, got %d", len(sink.calls))
	}
}

func TestHandleEventParsesAndStoresDiscovery(t *testing.T) {
	sink := &fakeSink{}
	h := NewHandler(testChannels(), sink, &fakeLookup{})

	ev := telegramx.Event{
		ChatID:    -100,
		MessageID: 1,
		Text:      "[Bean Cabal (CABAL)] 944XTHEzqEB3kkEzUqXGNYNiivaaaaaaaaaaaaaaaaaaaaaaaa Cap: 45.9K",
		Date:      time.Now(),
	}
	if err := h.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if len(sink.calls) != 1 {
		t.Fatalf("expected one normalized call, got %d", len(sink.calls))
	}
	if sink.calls[0].MessageType != model.MessageTypeDiscovery {
		t.Fatalf("message_type = %v, want discovery", sink.calls[0].MessageType)
	}
	if sink.calls[0].LinkedCryptoCallID != nil {
		t.Fatalf("discovery must never link, got %v", sink.calls[0].LinkedCryptoCallID)
	}
}

func TestHandleEventLinksUpdateToDiscoveryByTokenName(t *testing.T) {
	addr := "0xabc"
	parentID := int64(7)
	sink := &fakeSink{}
	lookup := &fakeLookup{discoveries: map[string]*model.CryptoCall{addr: {ID: parentID}}}
	h := NewHandler(testChannels(), sink, lookup)

	// An update doesn't carry a contract address, so the contract entry
	// above is never consulted; the fallback-format message's $TOKEN tag
	// links it through the token-name lookup instead.
	lookup.discoveries["CABAL"] = &model.CryptoCall{ID: parentID}

	ev := telegramx.Event{
		ChatID:    -100,
		MessageID: 2,
		Text:      "$CABAL Entry: 45K MC Peak: 180K MC (4x)",
		Date:      time.Now(),
	}
	if err := h.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}
	if len(sink.calls) != 1 {
		t.Fatalf("expected one normalized call, got %d", len(sink.calls))
	}
	if sink.calls[0].LinkedCryptoCallID == nil || *sink.calls[0].LinkedCryptoCallID != parentID {
		t.Fatalf("LinkedCryptoCallID = %v, want %d", sink.calls[0].LinkedCryptoCallID, parentID)
	}
}
