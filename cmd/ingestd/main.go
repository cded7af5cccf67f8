// Command ingestd runs the long-lived ingestion daemon: it connects to
// the chat network, classifies and parses inbound messages into
// normalized crypto call records, links updates to their discovery,
// and fans each record out to the primary store and any configured
// secondary sinks.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pfultibot/callpipe/internal/chatstream"
	"github.com/pfultibot/callpipe/internal/config"
	"github.com/pfultibot/callpipe/internal/ingest"
	"github.com/pfultibot/callpipe/internal/sinkfanout"
	"github.com/pfultibot/callpipe/internal/store/excelsink"
	"github.com/pfultibot/callpipe/internal/store/sheetsink"
	"github.com/pfultibot/callpipe/internal/store/sqlite"
	"github.com/pfultibot/callpipe/pkg/logging"
	"github.com/pfultibot/callpipe/pkg/telegramx"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("failed to load configuration", "error", err)
	}

	logger := logging.New(&logging.Config{Level: cfg.LogLevel})
	logging.SetDefault(logger)
	log := logger.Component("ingestd")

	primary, err := sqlite.New(&sqlite.Config{DataDir: cfg.DataDir})
	if err != nil {
		log.Fatal("failed to open primary store", "error", err)
	}

	var secondaries []sinkfanout.SecondarySink
	if cfg.EnableExcel {
		excel, err := excelsink.Open(resolveExcelPath(cfg))
		if err != nil {
			log.Error("failed to open excel sink, continuing without it", "error", err)
		} else {
			secondaries = append(secondaries, excel)
		}
	}
	if cfg.EnableSheets {
		sheet, err := sheetsink.Open(context.Background(), cfg.SheetID, cfg.CredentialsPath)
		if err != nil {
			log.Error("failed to open sheets sink, continuing without it", "error", err)
		} else {
			secondaries = append(secondaries, sheet)
		}
	}

	coordinator := sinkfanout.New(primary, secondaries...)
	handler := ingest.NewHandler(cfg.Channels, coordinator, primary)

	client, err := telegramx.NewClient(telegramx.Config{
		APIID:       cfg.APIID,
		APIHash:     cfg.APIHash,
		SessionPath: resolveSessionPath(cfg),
		SessionB64:  cfg.SessionB64,
	}, func(ev telegramx.Event) {
		if err := handler.HandleEvent(context.Background(), ev); err != nil {
			log.Error("failed to handle event", "chat_id", ev.ChatID, "message_id", ev.MessageID, "error", err)
		}
	})
	if err != nil {
		log.Fatal("failed to construct stream client", "error", err)
	}

	supervisor := chatstream.New(client, chatstream.Config{
		MaxReconnectAttempts: cfg.ReconnectMaxAttempts,
		HealthCheckInterval:  cfg.HealthCheckInterval,
		DrainTimeout:         cfg.DrainTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received, draining")
		cancel()
	}()

	runErr := supervisor.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer shutdownCancel()
	_ = supervisor.Shutdown(shutdownCtx, func(context.Context) error {
		return coordinator.Close()
	})

	if runErr != nil {
		log.Fatal("stream supervisor exited with error", "error", runErr)
	}
}

func resolveSessionPath(cfg *config.Config) string {
	return cfg.DataDir + "/" + cfg.Session + ".session"
}

func resolveExcelPath(cfg *config.Config) string {
	if cfg.ExcelPath != "" {
		return cfg.ExcelPath
	}
	return cfg.DataDir + "/crypto_calls.xlsx"
}
