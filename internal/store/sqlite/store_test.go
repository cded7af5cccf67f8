package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pfultibot/callpipe/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "callpipe-store-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewCreatesDatabaseFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "callpipe-store-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()

	dbPath := filepath.Join(tmpDir, "callpipe.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, _ := os.UserHomeDir()
	expanded := expandPath("~/.test")
	expected := filepath.Join(home, ".test")
	if expanded != expected {
		t.Errorf("expandPath(~/.test) = %s, want %s", expanded, expected)
	}
}

func TestAppendAndFindRawMessageIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	raw := &model.RawMessage{
		MessageID:   101,
		ChannelID:   -100,
		ChannelName: "alpha-calls",
		MessageText: "hello",
		MessageDate: time.Now(),
	}

	if err := store.AppendRaw(ctx, raw); err != nil {
		t.Fatalf("AppendRaw() error = %v", err)
	}
	// Re-ingesting the same (channel_id, message_id) must upsert, not duplicate.
	raw.MessageText = "hello, updated"
	if err := store.AppendRaw(ctx, raw); err != nil {
		t.Fatalf("AppendRaw() second call error = %v", err)
	}

	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM raw_messages WHERE channel_id = ? AND message_id = ?", raw.ChannelID, raw.MessageID).Scan(&count); err != nil {
		t.Fatalf("count query error = %v", err)
	}
	if count != 1 {
		t.Fatalf("raw_messages rows = %d, want 1 (idempotent upsert)", count)
	}
}

func TestAppendCallAndLookups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	token := "CABAL"
	addr := "944XTHEz0000000000000000000"
	discovery := &model.CryptoCall{
		MessageID:            1,
		ChannelID:            -100,
		ChannelName:          "alpha-calls",
		MessageType:          model.MessageTypeDiscovery,
		TokenName:            &token,
		ContractAddress:      &addr,
		Timestamp:            time.Now(),
		ClassificationResult: "parsed",
	}
	if err := store.AppendCall(ctx, discovery); err != nil {
		t.Fatalf("AppendCall(discovery) error = %v", err)
	}
	if discovery.ID == 0 {
		t.Fatalf("expected discovery to be assigned an ID")
	}

	since := time.Now().Add(-24 * time.Hour)

	byContract, err := store.FindByContract(ctx, -100, addr, since)
	if err != nil {
		t.Fatalf("FindByContract() error = %v", err)
	}
	if byContract == nil || byContract.ID != discovery.ID {
		t.Fatalf("FindByContract() = %v, want discovery", byContract)
	}

	byName, err := store.FindByTokenName(ctx, -100, "cabal", since)
	if err != nil {
		t.Fatalf("FindByTokenName() error = %v", err)
	}
	if byName == nil || byName.ID != discovery.ID {
		t.Fatalf("FindByTokenName() = %v, want discovery", byName)
	}

	byReply, err := store.FindByReply(ctx, -100, 1)
	if err != nil {
		t.Fatalf("FindByReply() error = %v", err)
	}
	if byReply == nil || byReply.ID != discovery.ID {
		t.Fatalf("FindByReply() = %v, want discovery", byReply)
	}

	fetched, err := store.GetCallByID(ctx, discovery.ID)
	if err != nil {
		t.Fatalf("GetCallByID() error = %v", err)
	}
	if fetched == nil || fetched.TokenName == nil || *fetched.TokenName != token {
		t.Fatalf("GetCallByID() = %v, want token %s", fetched, token)
	}
}

func TestUpdateRawClassificationRecordsOutcome(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	raw := &model.RawMessage{MessageID: 1, ChannelID: -100, MessageText: "good morning", MessageDate: time.Now()}
	if err := store.AppendRaw(ctx, raw); err != nil {
		t.Fatalf("AppendRaw() error = %v", err)
	}

	if err := store.UpdateRawClassification(ctx, -100, 1, true, "parsed"); err != nil {
		t.Fatalf("UpdateRawClassification() error = %v", err)
	}

	rows, err := store.UnlinkedRawMessages(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("UnlinkedRawMessages() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("UnlinkedRawMessages() = %v, want one row", rows)
	}
	if !rows[0].IsClassified || rows[0].ClassificationResult != "parsed" {
		t.Fatalf("row = %+v, want IsClassified=true classification_result=parsed", rows[0])
	}
}

func TestUnlinkedRawMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	linked := &model.RawMessage{MessageID: 1, ChannelID: -100, MessageDate: time.Now()}
	unlinked := &model.RawMessage{MessageID: 2, ChannelID: -100, MessageDate: time.Now()}
	if err := store.AppendRaw(ctx, linked); err != nil {
		t.Fatalf("AppendRaw() error = %v", err)
	}
	if err := store.AppendRaw(ctx, unlinked); err != nil {
		t.Fatalf("AppendRaw() error = %v", err)
	}

	call := &model.CryptoCall{MessageID: 1, ChannelID: -100, MessageType: model.MessageTypeDiscovery, Timestamp: time.Now()}
	if err := store.AppendCall(ctx, call); err != nil {
		t.Fatalf("AppendCall() error = %v", err)
	}

	rows, err := store.UnlinkedRawMessages(ctx, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("UnlinkedRawMessages() error = %v", err)
	}
	if len(rows) != 1 || rows[0].MessageID != 2 {
		t.Fatalf("UnlinkedRawMessages() = %v, want only message_id 2", rows)
	}
}
