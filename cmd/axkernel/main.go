// Command axkernel runs the governed reasoning kernel: an HTTP server by
// default, plus one-shot subcommands for running a session, verifying the
// ledger, and printing the configuration fingerprint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/axprotocol/core/pkg/api"
	"github.com/axprotocol/core/pkg/config"
	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/crypto"
	"github.com/axprotocol/core/pkg/fingerprint"
	"github.com/axprotocol/core/pkg/governance"
	"github.com/axprotocol/core/pkg/ledger"
	"github.com/axprotocol/core/pkg/llm"
	"github.com/axprotocol/core/pkg/observability"
	"github.com/axprotocol/core/pkg/orchestration"
	"github.com/axprotocol/core/pkg/sentinel"
	"github.com/axprotocol/core/pkg/taes"
)

// Exit codes: 0 success, 2 usage or configuration error, 3 session ended
// with a fatal failure or a hard no-go, 4 ledger verification found defects.
const (
	exitOK     = 0
	exitUsage  = 2
	exitFailed = 3
	exitTamper = 4
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands. Split from main for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(stderr)
	}
	switch args[1] {
	case "serve", "server":
		return runServe(stderr)
	case "run":
		return runSession(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "fingerprint":
		return runFingerprint(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `axkernel - governed multi-role reasoning kernel

Usage:
  axkernel [serve]                    start the HTTP API (default)
  axkernel run [flags] <objective>    execute one session
      -domain <name>    force the objective domain
      -session <id>     reuse a session id
      -caller           enable the pre-chain triage role
  axkernel verify [-ledger <path>]    verify the audit ledger
  axkernel fingerprint                print the configuration fingerprint

Configuration is read from AXP_* environment variables.
`)
}

// kernel bundles everything a session run needs plus its teardown.
type kernel struct {
	cfg    *config.Config
	chain  *orchestration.Chain
	logger *slog.Logger
	close  func()
}

func buildKernel(logger *slog.Logger) (*kernel, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	signer, err := crypto.LoadOrCreate(cfg.KeyDir, cfg.AllowHMAC, []byte(cfg.HMACSecret))
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}

	configHash, err := fingerprint.Compute(cfg.FingerprintInputs())
	if err != nil {
		return nil, err
	}

	var closers []func()
	opts := []ledger.Option{ledger.WithRotation(cfg.RotateBytes)}

	var mirror ledger.Mirror
	if cfg.DatabaseURL != "" {
		mirror, err = ledger.OpenPostgres(cfg.DatabaseURL)
	} else {
		mirror, err = ledger.OpenSQLite(filepath.Join(cfg.LogsDir, "ledger.db"))
	}
	if err != nil {
		return nil, fmt.Errorf("ledger mirror: %w", err)
	}
	closers = append(closers, func() { _ = mirror.Close() })
	opts = append(opts, ledger.WithMirror(mirror))

	ctx := context.Background()
	if cfg.ArchiveS3URI != "" {
		archiver, err := ledger.NewS3Archiver(ctx, cfg.ArchiveS3URI)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ledger.WithArchiver(archiver))
	} else if cfg.ArchiveGCS != "" {
		archiver, err := ledger.NewGCSArchiver(ctx, cfg.ArchiveGCS)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ledger.WithArchiver(archiver))
	}

	appender, err := ledger.NewAppender(cfg.LedgerPath(), signer, configHash, logger, opts...)
	if err != nil {
		return nil, err
	}

	shapes, err := orchestration.LoadRoleShapes(cfg.RoleShapesPath())
	if err != nil {
		return nil, err
	}

	coupling := governance.Load(cfg.CouplingPath(), logger)
	taes.LoadDomainWeights(cfg.TAESWeightsPath(), logger)
	irdLog := taes.NewIRDLog(cfg.IRDLogPath())
	client := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	chain := orchestration.New(cfg, client, coupling, appender, irdLog, shapes, configHash, logger)

	return &kernel{
		cfg:    cfg,
		chain:  chain,
		logger: logger,
		close: func() {
			for _, c := range closers {
				c()
			}
		},
	}, nil
}

func runServe(stderr io.Writer) int {
	logger := observability.NewLogger(slog.LevelInfo, true)
	slog.SetDefault(logger)

	k, err := buildKernel(logger)
	if err != nil {
		fmt.Fprintf(stderr, "startup: %v\n", err)
		return exitUsage
	}
	defer k.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observability.New(ctx, observability.DefaultConfig(), logger)
	if err != nil {
		fmt.Fprintf(stderr, "telemetry: %v\n", err)
		return exitUsage
	}
	defer func() { _ = telemetry.Shutdown(context.Background()) }()

	apiOpts := []api.ServerOption{api.WithAuthSecret(k.cfg.APISecret)}
	if k.cfg.RedisAddr != "" {
		apiOpts = append(apiOpts, api.WithIdempotency(api.NewRedisIdempotency(k.cfg.RedisAddr)))
	}
	runner := &instrumentedRunner{chain: k.chain, telemetry: telemetry}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", k.cfg.Port),
		Handler:           api.NewServer(runner, logger, apiOpts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("kernel api listening", "port", k.cfg.Port, "version", config.ProtocolVersion)

	select {
	case err := <-errCh:
		fmt.Fprintf(stderr, "server: %v\n", err)
		return exitUsage
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	return exitOK
}

// instrumentedRunner wraps the chain with a session span and counters.
type instrumentedRunner struct {
	chain     *orchestration.Chain
	telemetry *observability.Provider
}

func (r *instrumentedRunner) Run(ctx context.Context, objective string, domain contracts.Domain, sessionID string) (*contracts.ChainResult, error) {
	ctx, span := r.telemetry.StartSpan(ctx, "session.run")
	defer span.End()

	result, err := r.chain.Run(ctx, objective, domain, sessionID)
	if result != nil {
		r.telemetry.RecordSession(ctx, string(result.Domain), result.Governance.NoGo)
		for _, e := range result.Errors {
			r.telemetry.RecordRoleFailure(ctx, string(e.Role), string(e.Kind))
		}
	}
	return result, err
}

func runSession(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	domain := fs.String("domain", "", "objective domain (detected when empty)")
	session := fs.String("session", "", "session id (generated when empty)")
	caller := fs.Bool("caller", false, "enable the pre-chain triage role")
	asJSON := fs.Bool("json", false, "print the full result as JSON instead of the report")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(stderr, "usage: axkernel run [flags] <objective>")
		return exitUsage
	}
	objective := fs.Arg(0)

	logger := observability.NewLogger(slog.LevelWarn, false)
	k, err := buildKernel(logger)
	if err != nil {
		fmt.Fprintf(stderr, "startup: %v\n", err)
		return exitUsage
	}
	defer k.close()
	k.chain.EnableCaller = *caller

	result, err := k.chain.Run(context.Background(), objective, contracts.Domain(*domain), *session)
	if err != nil {
		fmt.Fprintf(stderr, "session: %v\n", err)
		return exitUsage
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else if result.Terminated {
		fmt.Fprintln(stdout, "session terminated by triage")
		if result.Caller != nil && result.Caller.Response != "" {
			fmt.Fprintln(stdout, result.Caller.Response)
		}
	} else {
		fmt.Fprintln(stdout, result.Report)
	}

	if fatalOutcome(result) {
		return exitFailed
	}
	return exitOK
}

// fatalOutcome reports whether the session result warrants a non-zero exit:
// a fatal role failure or a hard governance no-go.
func fatalOutcome(result *contracts.ChainResult) bool {
	if result.Governance.NoGo {
		return true
	}
	for _, e := range result.Errors {
		switch e.Role {
		case contracts.RoleStrategist, contracts.RoleAnalyst, contracts.RoleProducer:
			return true
		}
	}
	return false
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ledgerPath := fs.String("ledger", "", "ledger path (default from AXP_LOGS_DIR)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	path := *ledgerPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(stderr, "config: %v\n", err)
			return exitUsage
		}
		path = cfg.LedgerPath()
	}

	report, err := sentinel.Verify(path)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return exitUsage
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if !report.Verified {
		return exitTamper
	}
	return exitOK
}

func runFingerprint(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}
	fp, err := fingerprint.Compute(cfg.FingerprintInputs())
	if err != nil {
		fmt.Fprintf(stderr, "fingerprint: %v\n", err)
		return exitUsage
	}
	fmt.Fprintln(stdout, fp)
	return exitOK
}
