package sentinel

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/crypto"
	"github.com/axprotocol/core/pkg/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// seedLedger writes n signed entries through the real appender and returns
// the ledger path.
func seedLedger(t *testing.T, n int, opts ...ledger.Option) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	signer, err := crypto.NewEd25519Signer()
	require.NoError(t, err)
	a, err := ledger.NewAppender(path, signer, "sha256:cfg", testLogger(), opts...)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		_, err := a.Append(context.Background(), ledger.Record{
			SessionID: "sess-1",
			Role:      "Strategist",
			Action:    contracts.ActionRoleOutput,
			Payload:   map[string]any{"n": i},
		})
		require.NoError(t, err)
	}
	return path
}

func findingsByReason(r *Report) map[string]int {
	out := map[string]int{}
	for _, f := range r.Details {
		out[f.Reason]++
	}
	return out
}

func rewriteLine(t *testing.T, path string, line int, mutate func(string) string) {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Greater(t, len(lines), line)
	lines[line] = mutate(lines[line])
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestVerifyCleanLedger(t *testing.T) {
	path := seedLedger(t, 5)
	report, err := Verify(path)
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Equal(t, 5, report.Entries)
	assert.Empty(t, report.Details)
}

func TestVerifyEmptyDirectory(t *testing.T) {
	report, err := Verify(filepath.Join(t.TempDir(), "audit.jsonl"))
	require.NoError(t, err)
	assert.True(t, report.Verified)
	assert.Zero(t, report.Entries)
}

func TestVerifyDetectsPayloadHashTamper(t *testing.T) {
	path := seedLedger(t, 3)

	// Flip one hex character of the second entry's payload_hash. The
	// signature no longer covers the canonical fields and the recomputed
	// this_hash diverges from the stored one.
	rewriteLine(t, path, 1, func(line string) string {
		var e contracts.LedgerEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		h := []byte(e.PayloadHash)
		if h[0] == 'a' {
			h[0] = 'b'
		} else {
			h[0] = 'a'
		}
		e.PayloadHash = string(h)
		out, err := json.Marshal(&e)
		require.NoError(t, err)
		return string(out)
	})

	report, err := Verify(path)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	byReason := findingsByReason(report)
	assert.Equal(t, 1, byReason[ReasonSigInvalid])
	assert.Equal(t, 1, byReason[ReasonHashMismatch])
	assert.Zero(t, byReason[ReasonChainBreak])
}

func TestVerifyDetectsForgedAppend(t *testing.T) {
	path := seedLedger(t, 2)

	forged := contracts.LedgerEntry{
		Seq:         3,
		TS:          "2026-01-01T00:00:00Z",
		SessionID:   "sess-1",
		Role:        "Producer",
		Action:      contracts.ActionRoleOutput,
		PayloadHash: strings.Repeat("ab", 32),
		PrevHash:    strings.Repeat("cd", 32),
		ThisHash:    strings.Repeat("ef", 32),
		Signature:   strings.Repeat("12", 64),
		SignerKeyID: "ed25519:deadbeefdeadbeef",
		ConfigHash:  "sha256:cfg",
	}
	raw, err := json.Marshal(&forged)
	require.NoError(t, err)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.Write(append(raw, '\n'))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	report, err := Verify(path)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	byReason := findingsByReason(report)
	assert.GreaterOrEqual(t, byReason[ReasonSigInvalid], 1)
	assert.GreaterOrEqual(t, byReason[ReasonChainBreak], 1)
}

func TestVerifyDetectsMalformedInsertion(t *testing.T) {
	path := seedLedger(t, 3)
	rewriteLine(t, path, 1, func(string) string {
		return `{"seq": not even json`
	})

	report, err := Verify(path)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	byReason := findingsByReason(report)
	assert.Equal(t, 1, byReason[ReasonInvalidJSON])
	// The entry after the unreadable line cannot anchor to a known head, so
	// no spurious chain_break is reported for it.
	assert.Zero(t, byReason[ReasonChainBreak])
}

func TestVerifyMissingPublicKey(t *testing.T) {
	path := seedLedger(t, 2)
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(path), "public.key")))

	report, err := Verify(path)
	require.NoError(t, err)
	assert.False(t, report.Verified)
	require.Len(t, report.Details, 1)
	assert.Equal(t, ReasonMissingPublicKey, report.Details[0].Reason)
}

func TestVerifyFollowsRotatedSegments(t *testing.T) {
	// A 1-byte threshold forces a rotation before every append after the
	// first, producing sealed segments plus the active file.
	path := seedLedger(t, 4, ledger.WithRotation(1))

	report, err := Verify(path)
	require.NoError(t, err)
	assert.True(t, report.Verified, "findings: %+v", report.Details)
	assert.Greater(t, len(report.Segments), 1)
	// 4 records plus one rollover entry per sealed segment.
	assert.Equal(t, 4+len(report.Segments)-1, report.Entries)
}

func TestVerifyHMACSignedLedger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	signer, err := crypto.NewHMACSigner([]byte("a-shared-secret-of-adequate-size"))
	require.NoError(t, err)
	a, err := ledger.NewAppender(path, signer, "sha256:cfg", testLogger())
	require.NoError(t, err)
	_, err = a.Append(context.Background(), ledger.Record{
		SessionID: "sess-1", Role: "Analyst", Action: contracts.ActionRoleOutput,
		Payload: map[string]string{"k": "v"},
	})
	require.NoError(t, err)

	report, err := Verify(path)
	require.NoError(t, err)
	assert.True(t, report.Verified)
}

func TestServerEndpoints(t *testing.T) {
	path := seedLedger(t, 2)
	srv := &Server{
		LedgerPath: path,
		ReportsDir: filepath.Join(filepath.Dir(path), "reports"),
		Logger:     testLogger(),
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		res := getJSON(t, ts.URL+"/health")
		assert.Equal(t, "ok", res["status"])
		assert.Equal(t, path, res["ledger_path"])
		assert.NotEmpty(t, res["version"])
	})

	t.Run("verify writes a report", func(t *testing.T) {
		res := getJSON(t, ts.URL+"/verify")
		assert.Equal(t, true, res["verified"])

		entries, err := os.ReadDir(srv.ReportsDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.True(t, strings.HasPrefix(entries[0].Name(), "verify_"))
	})

	t.Run("reports lists newest first", func(t *testing.T) {
		res := getJSON(t, ts.URL+"/reports")
		reports := res["reports"].([]any)
		require.NotEmpty(t, reports)
	})

	t.Run("domains", func(t *testing.T) {
		res := getJSON(t, ts.URL+"/domains")
		domains := res["domains"].([]any)
		assert.Len(t, domains, len(contracts.Domains))
	})
}

func getJSON(t *testing.T, url string) map[string]any {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}
