// Package backfilljob re-runs classification, parsing, and linking over
// raw messages that never produced a normalized call — messages
// captured while the ingest pipeline was down, or dropped by an
// earlier, stricter classifier. It never applies market-cap proximity
// matching; only the same conservative link priority the live pipeline
// uses.
package backfilljob

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/pfultibot/callpipe/internal/link"
	"github.com/pfultibot/callpipe/internal/model"
	"github.com/pfultibot/callpipe/internal/parse"
	"github.com/pfultibot/callpipe/pkg/logging"
)

// Store is the subset of the primary store the backfill job needs:
// a source of unlinked raw messages and a sink for the calls it derives.
type Store interface {
	UnlinkedRawMessages(ctx context.Context, since time.Time, limit int) ([]*model.RawMessage, error)
	AppendCall(ctx context.Context, call *model.CryptoCall) error
	UpdateRawClassification(ctx context.Context, channelID, messageID int64, isClassified bool, result string) error
	link.Lookup
}

// Options controls one backfill run.
type Options struct {
	Since     time.Time
	BatchSize int
	Limit     int
	DryRun    bool
}

// Result summarizes one backfill run.
type Result struct {
	Scanned int
	Parsed  int
	Linked  int
	Stored  int
}

// Job re-runs the parse/link pipeline over raw messages lacking a
// normalized call.
type Job struct {
	store Store
	log   *logging.Logger
}

// New builds a Job against store.
func New(store Store) *Job {
	return &Job{store: store, log: logging.GetDefault().Component("backfill")}
}

// Run scans raw messages since opts.Since (bounded by opts.Limit,
// fetched opts.BatchSize at a time) and attempts to parse and link
// each one that has no existing call. In dry-run mode nothing is
// written; the result still reflects what would have happened.
func (j *Job) Run(ctx context.Context, opts Options) (Result, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	var res Result
	remaining := opts.Limit

	for {
		fetch := batchSize
		if remaining > 0 && remaining < fetch {
			fetch = remaining
		}

		batch, err := j.fetchBatch(ctx, opts.Since, fetch)
		if err != nil {
			return res, fmt.Errorf("fetch unlinked raw messages: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, raw := range batch {
			if err := ctx.Err(); err != nil {
				return res, err
			}

			res.Scanned++

			parsed, ok := parse.Parse(raw.MessageText)
			if !ok {
				continue
			}
			res.Parsed++

			linkResult, err := link.Link(ctx, parsed, raw, j.store)
			if err != nil {
				j.log.Warn("link lookup failed during backfill", "channel_id", raw.ChannelID, "message_id", raw.MessageID, "error", err)
				continue
			}
			if linkResult.ParentID != nil {
				res.Linked++
			}

			call := buildCall(raw, parsed, linkResult)

			if opts.DryRun {
				res.Stored++
				continue
			}

			if err := j.store.AppendCall(ctx, call); err != nil {
				j.log.Warn("failed to persist backfilled call", "channel_id", raw.ChannelID, "message_id", raw.MessageID, "error", err)
				continue
			}
			if err := j.store.UpdateRawClassification(ctx, raw.ChannelID, raw.MessageID, true, "backfilled"); err != nil {
				j.log.Warn("failed to mark raw row as backfilled", "channel_id", raw.ChannelID, "message_id", raw.MessageID, "error", err)
			}
			res.Stored++
		}

		if remaining > 0 {
			remaining -= len(batch)
			if remaining <= 0 {
				break
			}
		}
		if len(batch) < fetch {
			break
		}
	}

	return res, nil
}

// fetchBatch wraps the store round trip in a short exponential backoff:
// a single offline run shouldn't abort on a momentarily busy database.
func (j *Job) fetchBatch(ctx context.Context, since time.Time, limit int) ([]*model.RawMessage, error) {
	var batch []*model.RawMessage

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	err := backoff.Retry(func() error {
		var err error
		batch, err = j.store.UnlinkedRawMessages(ctx, since, limit)
		return err
	}, policy)

	return batch, err
}

func buildCall(raw *model.RawMessage, parsed *model.ParsedMessage, linkResult link.Result) *model.CryptoCall {
	call := &model.CryptoCall{
		MessageID:            raw.MessageID,
		ChannelID:            raw.ChannelID,
		ChannelName:          raw.ChannelName,
		MessageType:          parsed.MessageType,
		TokenName:            parsed.TokenName,
		ContractAddress:      parsed.ContractAddress,
		EntryCap:             parsed.EntryCap,
		PeakCap:              parsed.PeakCap,
		XGain:                parsed.XGain,
		VIPX:                 parsed.VIPX,
		TimeToPeak:           parsed.TimeToPeak,
		LinkedCryptoCallID:   linkResult.ParentID,
		ClassificationResult: "backfilled",
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
