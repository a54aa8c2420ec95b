// Command sentinel serves the independent ledger verifier. It runs as a
// separate process from the kernel on purpose: it holds no signing key and
// only ever reads the ledger directory.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/axprotocol/core/pkg/config"
	"github.com/axprotocol/core/pkg/observability"
	"github.com/axprotocol/core/pkg/sentinel"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := observability.NewLogger(slog.LevelInfo, true)
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	srv := &sentinel.Server{
		LedgerPath: cfg.LedgerPath(),
		ReportsDir: cfg.ReportsDir(),
		Logger:     logger,
	}
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.SentinelPort),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	logger.Info("sentinel listening", "port", cfg.SentinelPort, "ledger", cfg.LedgerPath())

	select {
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		return 1
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	return 0
}
