package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/axprotocol/core/pkg/contracts"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Mirror shadows ledger entries into a SQL store for querying. The JSONL
// file stays authoritative; a mirror miss is a logging matter, not a trust
// problem.
type Mirror interface {
	Insert(ctx context.Context, e *contracts.LedgerEntry) error
	BySession(ctx context.Context, sessionID string) ([]contracts.LedgerEntry, error)
	Close() error
}

const mirrorSchema = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	seq           BIGINT PRIMARY KEY,
	ts            TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	role          TEXT NOT NULL,
	action        TEXT NOT NULL,
	payload_hash  TEXT NOT NULL,
	prev_hash     TEXT NOT NULL,
	this_hash     TEXT NOT NULL,
	signature     TEXT NOT NULL,
	signer_key_id TEXT NOT NULL,
	config_hash   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_session ON ledger_entries (session_id);
`

// sqlMirror backs Mirror with database/sql. The placeholder style switches
// between SQLite (?) and Postgres ($n).
type sqlMirror struct {
	db       *sql.DB
	postgres bool
}

// OpenSQLite opens (and migrates) a SQLite mirror at path.
func OpenSQLite(path string) (Mirror, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("mirror open: %w", err)
	}
	// modernc sqlite serializes writes itself; one connection avoids
	// SQLITE_BUSY churn under concurrent sessions.
	db.SetMaxOpenConns(1)
	return newSQLMirror(db, false)
}

// OpenPostgres opens (and migrates) a Postgres mirror.
func OpenPostgres(dsn string) (Mirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("mirror open: %w", err)
	}
	return newSQLMirror(db, true)
}

// NewSQLMirror wraps an existing handle; tests hand in sqlmock here.
func NewSQLMirror(db *sql.DB, postgres bool) Mirror {
	return &sqlMirror{db: db, postgres: postgres}
}

func newSQLMirror(db *sql.DB, postgres bool) (Mirror, error) {
	if _, err := db.Exec(mirrorSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("mirror migrate: %w", err)
	}
	return &sqlMirror{db: db, postgres: postgres}, nil
}

func (m *sqlMirror) rebind(q string) string {
	if !m.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (m *sqlMirror) Insert(ctx context.Context, e *contracts.LedgerEntry) error {
	q := m.rebind(`INSERT INTO ledger_entries
		(seq, ts, session_id, role, action, payload_hash, prev_hash, this_hash, signature, signer_key_id, config_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := m.db.ExecContext(ctx, q,
		e.Seq, e.TS, e.SessionID, e.Role, string(e.Action),
		e.PayloadHash, e.PrevHash, e.ThisHash, e.Signature, e.SignerKeyID, e.ConfigHash)
	if err != nil {
		return fmt.Errorf("mirror insert seq %d: %w", e.Seq, err)
	}
	return nil
}

func (m *sqlMirror) BySession(ctx context.Context, sessionID string) ([]contracts.LedgerEntry, error) {
	q := m.rebind(`SELECT seq, ts, session_id, role, action, payload_hash, prev_hash, this_hash, signature, signer_key_id, config_hash
		FROM ledger_entries WHERE session_id = ? ORDER BY seq`)
	rows, err := m.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("mirror query: %w", err)
	}
	defer rows.Close()

	var out []contracts.LedgerEntry
	for rows.Next() {
		var e contracts.LedgerEntry
		var action string
		if err := rows.Scan(&e.Seq, &e.TS, &e.SessionID, &e.Role, &action,
			&e.PayloadHash, &e.PrevHash, &e.ThisHash, &e.Signature, &e.SignerKeyID, &e.ConfigHash); err != nil {
			return nil, fmt.Errorf("mirror scan: %w", err)
		}
		e.Action = contracts.LedgerAction(action)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (m *sqlMirror) Close() error {
	return m.db.Close()
}
