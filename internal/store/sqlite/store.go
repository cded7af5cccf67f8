// Package sqlite is the primary (required) sink: a relational store of
// raw and normalized call records backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pfultibot/callpipe/internal/model"
)

// Store is the primary sink and the linker's lookup backend.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds primary store configuration.
type Config struct {
	DataDir string
	DBFile  string // defaults to "callpipe.db"
}

// New opens (creating if needed) the primary SQLite store at
// cfg.DataDir/cfg.DBFile, in WAL mode with a single writer connection,
// and brings the schema up to date.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbFile := cfg.DBFile
	if dbFile == "" {
		dbFile = "callpipe.db"
	}
	dbPath := filepath.Join(dataDir, dbFile)

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Name identifies this sink for fan-out health reporting.
func (s *Store) Name() string { return "sqlite" }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection, for tooling that needs direct
// access (e.g. tests that count rows).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		channel_name TEXT,
		message_text TEXT,
		message_date INTEGER NOT NULL,
		reply_to_id INTEGER,
		is_classified INTEGER NOT NULL DEFAULT 0,
		classification_result TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE(message_id, channel_id)
	);

	CREATE INDEX IF NOT EXISTS idx_raw_messages_channel ON raw_messages(channel_id);
	CREATE INDEX IF NOT EXISTS idx_raw_messages_date ON raw_messages(message_date);

	CREATE TABLE IF NOT EXISTS crypto_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		channel_name TEXT,
		message_type TEXT NOT NULL,
		token_name TEXT,
		contract_address TEXT,
		entry_cap REAL,
		peak_cap REAL,
		x_gain REAL,
		vip_x REAL,
		time_to_peak TEXT,
		linked_crypto_call_id INTEGER,
		classification_result TEXT,
		timestamp INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(channel_id, message_id),
		FOREIGN KEY (linked_crypto_call_id) REFERENCES crypto_calls(id)
	);

	CREATE INDEX IF NOT EXISTS idx_crypto_calls_contract ON crypto_calls(contract_address);
	CREATE INDEX IF NOT EXISTS idx_crypto_calls_token ON crypto_calls(token_name);
	CREATE INDEX IF NOT EXISTS idx_crypto_calls_channel_ts ON crypto_calls(channel_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_crypto_calls_linked ON crypto_calls(linked_crypto_call_id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations evolves existing databases non-destructively. Errors
// are ignored since the column may already exist.
func (s *Store) runMigrations() error {
	migrations := []string{
		"ALTER TABLE crypto_calls ADD COLUMN classification_result TEXT",
		"ALTER TABLE crypto_calls ADD COLUMN time_to_peak TEXT",
		"ALTER TABLE raw_messages ADD COLUMN is_classified INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE raw_messages ADD COLUMN classification_result TEXT",
	}

	for _, migration := range migrations {
		_, _ = s.db.Exec(migration)
	}

	return nil
}

// AppendRaw upserts a raw message, idempotent on (message_id, channel_id).
func (s *Store) AppendRaw(ctx context.Context, raw *model.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_messages (message_id, channel_id, channel_name, message_text, message_date, reply_to_id, is_classified, classification_result, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, channel_id) DO UPDATE SET
			channel_name = excluded.channel_name,
			message_text = excluded.message_text,
			message_date = excluded.message_date,
			reply_to_id = excluded.reply_to_id
	`, raw.MessageID, raw.ChannelID, raw.ChannelName, raw.MessageText, raw.MessageDate.Unix(), nullableInt64(raw.ReplyToID), raw.IsClassified, nullableString(raw.ClassificationResult), now)
	if err != nil {
		return fmt.Errorf("upsert raw message: %w", err)
	}
	return nil
}

// UpdateRawClassification records the classify/parse outcome on an
// already-persisted raw row, for observability. It is also how the
// backfill job marks a raw row as having been processed.
func (s *Store) UpdateRawClassification(ctx context.Context, channelID, messageID int64, isClassified bool, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE raw_messages SET is_classified = ?, classification_result = ?
		WHERE channel_id = ? AND message_id = ?
	`, isClassified, nullableString(result), channelID, messageID)
	if err != nil {
		return fmt.Errorf("update raw classification: %w", err)
	}
	return nil
}

// AppendCall inserts a normalized call record. Idempotent on
// (channel_id, message_id): re-ingesting the same message updates the
// existing row rather than duplicating it.
func (s *Store) AppendCall(ctx context.Context, call *model.CryptoCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO crypto_calls (
			message_id, channel_id, channel_name, message_type, token_name,
			contract_address, entry_cap, peak_cap, x_gain, vip_x, time_to_peak,
			linked_crypto_call_id, classification_result, timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, message_id) DO UPDATE SET
			channel_name = excluded.channel_name,
			message_type = excluded.message_type,
			token_name = excluded.token_name,
			contract_address = excluded.contract_address,
			entry_cap = excluded.entry_cap,
			peak_cap = excluded.peak_cap,
			x_gain = excluded.x_gain,
			vip_x = excluded.vip_x,
			time_to_peak = excluded.time_to_peak,
			linked_crypto_call_id = excluded.linked_crypto_call_id,
			classification_result = excluded.classification_result
	`,
		call.MessageID, call.ChannelID, call.ChannelName, string(call.MessageType), call.TokenName,
		call.ContractAddress, call.EntryCap, call.PeakCap, call.XGain, call.VIPX, call.TimeToPeak,
		nullableInt64(call.LinkedCryptoCallID), call.ClassificationResult, call.Timestamp.Unix(), now,
	)
	if err != nil {
		return fmt.Errorf("insert crypto call: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil && id != 0 {
		call.ID = id
	}

	return tx.Commit()
}

// FindCallByMessageID returns the normalized call for a given channel
// and message, or nil if none exists yet.
func (s *Store) FindCallByMessageID(ctx context.Context, channelID, messageID int64) (*model.CryptoCall, error) {
	return s.queryOne(ctx, `
		SELECT id, message_id, channel_id, channel_name, message_type, token_name,
			contract_address, entry_cap, peak_cap, x_gain, vip_x, time_to_peak,
			linked_crypto_call_id, classification_result, timestamp, created_at
		FROM crypto_calls WHERE channel_id = ? AND message_id = ?
	`, channelID, messageID)
}

// GetCallByID returns a call by its primary key.
func (s *Store) GetCallByID(ctx context.Context, id int64) (*model.CryptoCall, error) {
	return s.queryOne(ctx, `
		SELECT id, message_id, channel_id, channel_name, message_type, token_name,
			contract_address, entry_cap, peak_cap, x_gain, vip_x, time_to_peak,
			linked_crypto_call_id, classification_result, timestamp, created_at
		FROM crypto_calls WHERE id = ?
	`, id)
}

// FindByReply implements link.Lookup: the authoritative, highest
// priority match — the discovery message this one is a reply to.
func (s *Store) FindByReply(ctx context.Context, channelID int64, replyToMessageID int64) (*model.CryptoCall, error) {
	return s.queryOne(ctx, `
		SELECT id, message_id, channel_id, channel_name, message_type, token_name,
			contract_address, entry_cap, peak_cap, x_gain, vip_x, time_to_peak,
			linked_crypto_call_id, classification_result, timestamp, created_at
		FROM crypto_calls WHERE channel_id = ? AND message_id = ? AND message_type = 'discovery'
	`, channelID, replyToMessageID)
}

// FindByContract implements link.Lookup: an exact contract-address
// match on a discovery within the lookback window.
func (s *Store) FindByContract(ctx context.Context, channelID int64, contractAddress string, since time.Time) (*model.CryptoCall, error) {
	return s.queryOne(ctx, `
		SELECT id, message_id, channel_id, channel_name, message_type, token_name,
			contract_address, entry_cap, peak_cap, x_gain, vip_x, time_to_peak,
			linked_crypto_call_id, classification_result, timestamp, created_at
		FROM crypto_calls
		WHERE channel_id = ? AND contract_address = ? AND message_type = 'discovery' AND timestamp >= ?
		ORDER BY timestamp DESC LIMIT 1
	`, channelID, contractAddress, since.Unix())
}

// FindByTokenName implements link.Lookup: an exact case-insensitive
// token-name match on a discovery within the lookback window.
func (s *Store) FindByTokenName(ctx context.Context, channelID int64, tokenName string, since time.Time) (*model.CryptoCall, error) {
	return s.queryOne(ctx, `
		SELECT id, message_id, channel_id, channel_name, message_type, token_name,
			contract_address, entry_cap, peak_cap, x_gain, vip_x, time_to_peak,
			linked_crypto_call_id, classification_result, timestamp, created_at
		FROM crypto_calls
		WHERE channel_id = ? AND UPPER(token_name) = UPPER(?) AND message_type = 'discovery' AND timestamp >= ?
		ORDER BY timestamp DESC LIMIT 1
	`, channelID, tokenName, since.Unix())
}

// UnlinkedRawMessages returns raw messages newer than since that have
// no corresponding crypto_calls row yet, for the backfill job.
func (s *Store) UnlinkedRawMessages(ctx context.Context, since time.Time, limit int) ([]*model.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.message_id, r.channel_id, r.channel_name, r.message_text, r.message_date, r.reply_to_id,
			r.is_classified, r.classification_result, r.created_at
		FROM raw_messages r
		LEFT JOIN crypto_calls c ON c.channel_id = r.channel_id AND c.message_id = r.message_id
		WHERE c.id IS NULL AND r.message_date >= ?
		ORDER BY r.message_date ASC
		LIMIT ?
	`, since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("query unlinked raw messages: %w", err)
	}
	defer rows.Close()

	var out []*model.RawMessage
	for rows.Next() {
		raw, err := scanRaw(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*model.CryptoCall, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	call, err := scanCall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return call, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*model.CryptoCall, error) {
	var (
		c            model.CryptoCall
		messageType  string
		tokenName    sql.NullString
		contractAddr sql.NullString
		entryCap     sql.NullFloat64
		peakCap      sql.NullFloat64
		xGain        sql.NullFloat64
		vipX         sql.NullFloat64
		timeToPeak   sql.NullString
		linkedID     sql.NullInt64
		classResult  sql.NullString
		timestamp    int64
		createdAt    int64
	)

	if err := row.Scan(&c.ID, &c.MessageID, &c.ChannelID, &c.ChannelName, &messageType, &tokenName,
		&contractAddr, &entryCap, &peakCap, &xGain, &vipX, &timeToPeak,
		&linkedID, &classResult, &timestamp, &createdAt); err != nil {
		return nil, err
	}

	c.MessageType = model.MessageType(messageType)
	c.TokenName = nullableStringPtr(tokenName)
	c.ContractAddress = nullableStringPtr(contractAddr)
	c.EntryCap = nullableFloatPtr(entryCap)
	c.PeakCap = nullableFloatPtr(peakCap)
	c.XGain = nullableFloatPtr(xGain)
	c.VIPX = nullableFloatPtr(vipX)
	c.TimeToPeak = nullableStringPtr(timeToPeak)
	c.LinkedCryptoCallID = nullableInt64Ptr(linkedID)
	c.ClassificationResult = classResult.String
	c.Timestamp = time.Unix(timestamp, 0).UTC()
	c.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &c, nil
}

func scanRaw(row rowScanner) (*model.RawMessage, error) {
	var (
		r              model.RawMessage
		messageDate    int64
		createdAt      int64
		replyTo        sql.NullInt64
		classification sql.NullString
	)

	if err := row.Scan(&r.ID, &r.MessageID, &r.ChannelID, &r.ChannelName, &r.MessageText, &messageDate, &replyTo,
		&r.IsClassified, &classification, &createdAt); err != nil {
		return nil, err
	}

	r.MessageDate = time.Unix(messageDate, 0).UTC()
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.ReplyToID = nullableInt64Ptr(replyTo)
	r.ClassificationResult = classification.String

	return &r, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableStringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func nullableFloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullableInt64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
