// Package sheetsink is a secondary, best-effort sink that mirrors
// normalized calls into a remote Google Sheets spreadsheet.
package sheetsink

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/pfultibot/callpipe/internal/model"
	"github.com/pfultibot/callpipe/pkg/logging"
)

const worksheetName = "crypto_calls"

var header = []any{
	"token_name", "entry_cap", "peak_cap", "x_gain", "vip_x",
	"message_type", "contract_address", "time_to_peak",
	"linked_crypto_call_id", "timestamp", "message_id", "channel_name",
}

// Sink appends one row per call to a worksheet within a shared Google
// Sheets spreadsheet. Open creates the worksheet and its header row
// when the worksheet is missing.
type Sink struct {
	sheetID string
	svc     *sheets.Service
	log     *logging.Logger

	mu sync.Mutex
}

// Open authenticates with the service-account credentials at
// credentialsPath and ensures the target worksheet and header exist.
func Open(ctx context.Context, sheetID, credentialsPath string) (*Sink, error) {
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}

	s := &Sink{sheetID: sheetID, svc: svc, log: logging.GetDefault().Component("sheetsink")}

	if err := s.ensureWorksheet(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Sink) ensureWorksheet(ctx context.Context) error {
	spreadsheet, err := s.svc.Spreadsheets.Get(s.sheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}

	for _, sh := range spreadsheet.Sheets {
		if sh.Properties.Title == worksheetName {
			return nil
		}
	}

	addReq := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{
					Title:      worksheetName,
					GridProperties: &sheets.GridProperties{RowCount: 1000, ColumnCount: int64(len(header))},
				},
			},
		}},
	}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.sheetID, addReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add worksheet: %w", err)
	}

	return s.writeHeader(ctx)
}

func (s *Sink) writeHeader(ctx context.Context) error {
	rng := worksheetName + "!A1"
	vr := &sheets.ValueRange{Values: [][]any{header}}
	_, err := s.svc.Spreadsheets.Values.Update(s.sheetID, rng, vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// Name identifies this sink for fan-out health reporting.
func (s *Sink) Name() string { return "sheets" }

// AppendCall appends a single row for call to the worksheet.
func (s *Sink) AppendCall(ctx context.Context, call *model.CryptoCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := []any{
		deref(call.TokenName), deref64(call.EntryCap), deref64(call.PeakCap),
		deref64(call.XGain), deref64(call.VIPX), string(call.MessageType),
		deref(call.ContractAddress), deref(call.TimeToPeak),
		derefInt(call.LinkedCryptoCallID), call.Timestamp.Unix(), call.MessageID, call.ChannelName,
	}

	vr := &sheets.ValueRange{Values: [][]any{row}}
	_, err := s.svc.Spreadsheets.Values.Append(s.sheetID, worksheetName+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}

	return nil
}

// Close is a no-op: the sheets API client holds no resources that
// require explicit release.
func (s *Sink) Close() error { return nil }

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func deref64(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefInt(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
