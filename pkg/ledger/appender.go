// Package ledger implements the signed, hash-chained JSONL audit trail.
// The JSONL file is authoritative; the SQL mirror exists for querying and is
// never consulted for trust decisions.
package ledger

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/axprotocol/core/pkg/canonicalize"
	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/crypto"
)

// Appender is the single-writer append head of the ledger.
type Appender struct {
	mu sync.Mutex

	path        string
	signer      crypto.Signer
	configHash  string
	rotateBytes int64

	mirror   Mirror
	archiver Archiver
	logger   *slog.Logger

	nextSeq  uint64
	prevHash string
}

// Option configures an Appender.
type Option func(*Appender)

// WithMirror attaches a SQL mirror. Mirror failures are logged, never fatal.
func WithMirror(m Mirror) Option { return func(a *Appender) { a.mirror = m } }

// WithArchiver uploads rotated segments to object storage.
func WithArchiver(ar Archiver) Option { return func(a *Appender) { a.archiver = ar } }

// WithRotation enables size-based rotation.
func WithRotation(bytes int64) Option { return func(a *Appender) { a.rotateBytes = bytes } }

// NewAppender opens the ledger at path, rescans the chain head, and
// publishes the signer's public material next to the file.
func NewAppender(path string, signer crypto.Signer, configHash string, logger *slog.Logger, opts ...Option) (*Appender, error) {
	a := &Appender{
		path:       path,
		signer:     signer,
		configHash: configHash,
		logger:     logger,
		nextSeq:    1,
		prevHash:   contracts.GenesisHash,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger dir: %w", err)
	}
	if err := a.rescanHead(); err != nil {
		return nil, err
	}

	pub := filepath.Join(filepath.Dir(path), "public.key")
	if err := os.WriteFile(pub, []byte(hexEncode(signer.PublicMaterial())+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("publish public key: %w", err)
	}
	return a, nil
}

// rescanHead reads the last parseable line to recover seq and prev_hash
// after a restart. When the active file is absent the head may still live in
// the newest sealed segment: rotation renames the active file first and the
// next segment only materializes on the following append, so a crash in
// between leaves no active file. Restarting from genesis there would fork the
// chain, so the sealed head is recovered instead.
func (a *Appender) rescanHead() error {
	path := a.path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		sealed, err := a.newestSealedSegment()
		if err != nil {
			return err
		}
		if sealed == "" {
			return nil
		}
		path = sealed
	}

	last, found, err := lastParseableEntry(path, a.logger)
	if err != nil {
		return err
	}
	if found {
		a.nextSeq = last.Seq + 1
		a.prevHash = last.ThisHash
	}
	return nil
}

// newestSealedSegment returns the lexicographically last sealed segment next
// to the active path, or "" when none exist. Sealed names embed a UTC
// timestamp, so lexicographic order is chronological order.
func (a *Appender) newestSealedSegment() (string, error) {
	matches, err := filepath.Glob(a.path + ".*")
	if err != nil {
		return "", fmt.Errorf("ledger segment scan: %w", err)
	}
	newest := ""
	for _, m := range matches {
		if filepath.Ext(m) == ".lock" || m <= newest {
			continue
		}
		newest = m
	}
	return newest, nil
}

func lastParseableEntry(path string, logger *slog.Logger) (contracts.LedgerEntry, bool, error) {
	var last contracts.LedgerEntry
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return last, false, nil
	}
	if err != nil {
		return last, false, fmt.Errorf("ledger open: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	found := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e contracts.LedgerEntry
		if err := json.Unmarshal(line, &e); err != nil {
			// The verifier reports the corruption; the appender keeps the
			// last good head so new entries still chain.
			logger.Warn("skipping unparseable ledger line during head rescan", "path", path)
			continue
		}
		last, found = e, true
	}
	if err := scanner.Err(); err != nil {
		return last, false, fmt.Errorf("ledger rescan: %w", err)
	}
	return last, found, nil
}

// Record is the caller-supplied part of one entry.
type Record struct {
	SessionID   string
	Role        string
	Action      contracts.LedgerAction
	Payload     any
	SoftSignals []string
	HardActions []string
	Meta        map[string]any
}

// Append signs and writes one entry under the file lock, returning the
// stored entry. The sequence (compute seq, compute prev_hash, sign, append)
// is atomic with respect to other processes holding the same lock file.
func (a *Appender) Append(ctx context.Context, rec Record) (*contracts.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	unlock, err := acquireLock(a.path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("ledger lock: %w", err)
	}
	defer unlock()

	if a.rotateBytes > 0 {
		if err := a.rotateIfNeeded(ctx); err != nil {
			return nil, err
		}
	}

	payloadHash, err := canonicalize.CanonicalHash(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("payload hash: %w", err)
	}

	entry, err := a.buildEntry(rec, payloadHash)
	if err != nil {
		return nil, err
	}
	if err := a.writeLine(entry); err != nil {
		return nil, err
	}

	a.nextSeq = entry.Seq + 1
	a.prevHash = entry.ThisHash

	if a.mirror != nil {
		if err := a.mirror.Insert(ctx, entry); err != nil {
			a.logger.Warn("ledger mirror insert failed", "seq", entry.Seq, "error", err)
		}
	}
	return entry, nil
}

func (a *Appender) buildEntry(rec Record, payloadHash string) (*contracts.LedgerEntry, error) {
	entry := &contracts.LedgerEntry{
		Seq:         a.nextSeq,
		TS:          time.Now().UTC().Format(time.RFC3339Nano),
		SessionID:   rec.SessionID,
		Role:        rec.Role,
		Action:      rec.Action,
		PayloadHash: payloadHash,
		PrevHash:    a.prevHash,
		SignerKeyID: a.signer.KeyID(),
		ConfigHash:  a.configHash,
		SoftSignals: rec.SoftSignals,
		HardActions: rec.HardActions,
		Meta:        rec.Meta,
	}

	canonical, err := canonicalize.JCS(entry.CanonicalFields())
	if err != nil {
		return nil, fmt.Errorf("canonicalize entry: %w", err)
	}
	sig, err := a.signer.Sign(canonical)
	if err != nil {
		return nil, fmt.Errorf("sign entry: %w", err)
	}
	entry.Signature = sig
	entry.ThisHash = canonicalize.HashBytes(append(canonical, []byte(sig)...))
	return entry, nil
}

func (a *Appender) writeLine(entry *contracts.LedgerEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("ledger open for append: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("ledger append: %w", err)
	}
	return f.Sync()
}

// rotateIfNeeded seals the current segment behind a rollover entry that
// names the archived file, so verifiers can follow the chain across
// segments.
func (a *Appender) rotateIfNeeded(ctx context.Context) error {
	info, err := os.Stat(a.path)
	if err != nil || info.Size() < a.rotateBytes {
		return nil
	}

	// Nanosecond precision keeps sealed names unique under rapid rotation.
	sealed := fmt.Sprintf("%s.%s", a.path, time.Now().UTC().Format("20060102T150405.000000000Z"))
	next := filepath.Base(a.path)
	payloadHash, err := canonicalize.CanonicalHash(map[string]any{"next": next})
	if err != nil {
		return err
	}
	rollover, err := a.buildEntry(Record{
		Action: contracts.ActionRollover,
		Meta:   map[string]any{"next": next},
	}, payloadHash)
	if err != nil {
		return err
	}
	if err := a.writeLine(rollover); err != nil {
		return err
	}
	a.nextSeq = rollover.Seq + 1
	a.prevHash = rollover.ThisHash

	if err := os.Rename(a.path, sealed); err != nil {
		return fmt.Errorf("ledger rotate: %w", err)
	}
	a.logger.Info("ledger segment sealed", "segment", sealed)

	if a.archiver != nil {
		if err := a.archiver.Archive(ctx, sealed); err != nil {
			a.logger.Warn("ledger segment archive failed", "segment", sealed, "error", err)
		}
	}
	return nil
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
