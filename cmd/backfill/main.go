// Command backfill re-runs classification, parsing, and linking over
// raw messages that never produced a normalized call, for operator-
// triggered recovery after an outage or a parser fix.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfultibot/callpipe/internal/backfilljob"
	"github.com/pfultibot/callpipe/internal/config"
	"github.com/pfultibot/callpipe/internal/store/sqlite"
	"github.com/pfultibot/callpipe/pkg/logging"
)

func main() {
	var (
		sinceHours int
		batchSize  int
		limit      int
		dryRun     bool
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "backfill",
		Short: "Re-run parsing and linking over raw messages with no normalized call",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if verbose {
				level = "debug"
			}
			logging.SetDefault(logging.New(&logging.Config{Level: level}))
			log := logging.GetDefault().Component("backfill")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := sqlite.New(&sqlite.Config{DataDir: cfg.DataDir})
			if err != nil {
				return fmt.Errorf("open primary store: %w", err)
			}
			defer store.Close()

			job := backfilljob.New(store)

			opts := backfilljob.Options{
				Since:     time.Now().Add(-time.Duration(sinceHours) * time.Hour),
				BatchSize: batchSize,
				Limit:     limit,
				DryRun:    dryRun,
			}

			res, err := job.Run(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("backfill run: %w", err)
			}

			log.Info("backfill complete",
				"scanned", res.Scanned, "parsed", res.Parsed, "linked", res.Linked, "stored", res.Stored, "dry_run", dryRun)
			return nil
		},
	}

	root.Flags().IntVar(&sinceHours, "since-hours", 24, "only scan raw messages captured in the last N hours")
	root.Flags().IntVar(&batchSize, "batch", 100, "rows fetched per database round trip")
	root.Flags().IntVar(&limit, "limit", 0, "maximum rows to scan (0 = unbounded)")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be stored without writing anything")
	root.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
