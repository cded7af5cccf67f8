// Package excelsink is a secondary, best-effort sink that mirrors
// normalized calls into a tabular spreadsheet file on disk.
package excelsink

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/qax-os/excelize/v2"

	"github.com/pfultibot/callpipe/internal/model"
	"github.com/pfultibot/callpipe/pkg/logging"
)

const sheetName = "crypto_calls"

// header is the fixed column order written to row 1 when Open creates
// the sheet.
var header = []string{
	"token_name", "entry_cap", "peak_cap", "x_gain", "vip_x",
	"message_type", "contract_address", "time_to_peak",
	"linked_crypto_call_id", "timestamp", "message_id", "channel_name",
}

// Sink writes one row per call to an xlsx workbook. The file, sheet and
// header row are created by Open, not on the first append.
type Sink struct {
	path string
	log  *logging.Logger

	mu sync.Mutex
	wb *excelize.File
}

// Open loads an existing workbook at path or creates a new one with a
// single "crypto_calls" sheet holding only the header row. An existing
// workbook without that sheet gets the sheet and header added.
func Open(path string) (*Sink, error) {
	s := &Sink{path: path, log: logging.GetDefault().Component("excelsink")}

	if _, err := os.Stat(path); err == nil {
		wb, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		s.wb = wb
		if idx, err := wb.GetSheetIndex(sheetName); err != nil || idx == -1 {
			if _, err := wb.NewSheet(sheetName); err != nil {
				return nil, fmt.Errorf("create sheet: %w", err)
			}
			if err := s.writeHeader(); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	wb := excelize.NewFile()
	if _, err := wb.NewSheet(sheetName); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	wb.DeleteSheet("Sheet1")
	s.wb = wb
	if err := s.writeHeader(); err != nil {
		return nil, err
	}
	if err := wb.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save new workbook: %w", err)
	}

	return s, nil
}

func (s *Sink) writeHeader() error {
	for i, h := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := s.wb.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	return nil
}

// Name identifies this sink for fan-out health reporting.
func (s *Sink) Name() string { return "excel" }

// AppendCall writes one row for call, appended after the last used row.
func (s *Sink) AppendCall(_ context.Context, call *model.CryptoCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.wb.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("read sheet rows: %w", err)
	}
	nextRow := len(rows) + 1

	values := []any{
		deref(call.TokenName), deref64(call.EntryCap), deref64(call.PeakCap),
		deref64(call.XGain), deref64(call.VIPX), string(call.MessageType),
		deref(call.ContractAddress), deref(call.TimeToPeak),
		derefInt(call.LinkedCryptoCallID), call.Timestamp.Unix(), call.MessageID, call.ChannelName,
	}

	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, nextRow)
		if err != nil {
			return err
		}
		if err := s.wb.SetCellValue(sheetName, cell, v); err != nil {
			return err
		}
	}

	if err := s.wb.SaveAs(s.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	return nil
}

// Close releases the workbook handle. It does not save; every
// AppendCall has already saved the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wb.Close()
}

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
