package backfilljob

import (
	"context"
	"testing"
	"time"

	"github.com/pfultibot/callpipe/internal/model"
)

type fakeStore struct {
	raws          []*model.RawMessage
	calls         []*model.CryptoCall
	byKey         map[string]*model.CryptoCall
	classifyCalls int
}

func (f *fakeStore) UnlinkedRawMessages(_ context.Context, since time.Time, limit int) ([]*model.RawMessage, error) {
	var out []*model.RawMessage
	for _, r := range f.raws {
		if r.MessageDate.Before(since) {
			continue
		}
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) AppendCall(_ context.Context, call *model.CryptoCall) error {
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeStore) UpdateRawClassification(_ context.Context, _, _ int64, _ bool, _ string) error {
	f.classifyCalls++
	return nil
}

func (f *fakeStore) FindByReply(context.Context, int64, int64) (*model.CryptoCall, error) { return nil, nil }
func (f *fakeStore) FindByContract(_ context.Context, _ int64, addr string, _ time.Time) (*model.CryptoCall, error) {
	return f.byKey[addr], nil
}
func (f *fakeStore) FindByTokenName(_ context.Context, _ int64, name string, _ time.Time) (*model.CryptoCall, error) {
	return f.byKey[name], nil
}

func TestRunParsesAndStoresEligibleMessages(t *testing.T) {
	store := &fakeStore{
		raws: []*model.RawMessage{
			{MessageID: 1, ChannelID: -100, ChannelName: "alpha", MessageText: "[Bean Cabal (CABAL)] 944XTHEzqEB3kkEzUqXGNYNiivaaaaaaaaaaaaaaaaaaaaaaaa Cap: 45.9K", MessageDate: time.Now()},
			{MessageID: 2, ChannelID: -100, ChannelName: "alpha", MessageText: "good morning", MessageDate: time.Now()},
		},
	}

	job := New(store)
	res, err := job.Run(context.Background(), Options{Since: time.Now().Add(-time.Hour), BatchSize: 10})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Scanned != 2 {
		t.Fatalf("Scanned = %d, want 2", res.Scanned)
	}
	if res.Parsed != 1 {
		t.Fatalf("Parsed = %d, want 1", res.Parsed)
	}
	if res.Stored != 1 {
		t.Fatalf("Stored = %d, want 1", res.Stored)
	}
	if len(store.calls) != 1 {
		t.Fatalf("expected one call persisted, got %d", len(store.calls))
	}
	if store.calls[0].ClassificationResult != "backfilled" {
		t.Fatalf("classification_result = %q, want backfilled", store.calls[0].ClassificationResult)
	}
	if store.classifyCalls != 1 {
		t.Fatalf("expected the raw row to be stamped backfilled, got %d calls", store.classifyCalls)
	}
}

func TestRunDryRunStoresNothing(t *testing.T) {
	store := &fakeStore{
		raws: []*model.RawMessage{
			{MessageID: 1, ChannelID: -100, ChannelName: "alpha", MessageText: "[Bean Cabal (CABAL)] 944XTHEzqEB3kkEzUqXGNYNiivaaaaaaaaaaaaaaaaaaaaaaaa Cap: 45.9K", MessageDate: time.Now()},
		},
	}

	job := New(store)
	res, err := job.Run(context.Background(), Options{Since: time.Now().Add(-time.Hour), BatchSize: 10, DryRun: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stored != 1 {
		t.Fatalf("Stored = %d, want 1 (counted even though dry-run)", res.Stored)
	}
	if len(store.calls) != 0 {
		t.Fatalf("expected no calls persisted in dry-run, got %d", len(store.calls))
	}
	if store.classifyCalls != 0 {
		t.Fatalf("expected no raw row stamped in dry-run, got %d", store.classifyCalls)
	}
}

func TestRunRespectsLimit(t *testing.T) {
	raws := make([]*model.RawMessage, 0, 5)
	for i := int64(1); i <= 5; i++ {
		raws = append(raws, &model.RawMessage{MessageID: i, ChannelID: -100, MessageText: "good morning", MessageDate: time.Now()})
	}
	store := &fakeStore{raws: raws}

	job := New(store)
	res, err := job.Run(context.Background(), Options{Since: time.Now().Add(-time.Hour), BatchSize: 10, Limit: 3})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Scanned != 3 {
		t.Fatalf("Scanned = %d, want 3", res.Scanned)
	}
}
