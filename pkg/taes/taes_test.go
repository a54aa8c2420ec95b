package taes

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axprotocol/core/pkg/contracts"
)

const solidOutput = `1. Map the audience and their friction points, because conversion depends on habit.
2. Build the funnel with a budget owner and a timeline of 14 days.
3. Ship and measure response rate against a target of 200 signups.`

func TestEvaluateDeterministic(t *testing.T) {
	a := Evaluate(contracts.RoleStrategist, contracts.DomainMarketing, solidOutput)
	b := Evaluate(contracts.RoleStrategist, contracts.DomainMarketing, solidOutput)
	assert.Equal(t, a, b)
}

func TestEvaluateRangesAndCanonicalIV(t *testing.T) {
	rec := Evaluate(contracts.RoleStrategist, contracts.DomainMarketing, solidOutput)

	for _, v := range []float64{rec.Logical, rec.Practical, rec.Probable, rec.IV, rec.DomainQuality} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	want := round3(0.5*rec.Logical + 0.35*rec.Practical + 0.15*rec.Probable)
	assert.InDelta(t, want, rec.IV, 1e-9)
	assert.GreaterOrEqual(t, rec.IRD, 0.0)
}

func TestDomainQualityDiffersFromIV(t *testing.T) {
	rec := Evaluate(contracts.RoleStrategist, contracts.DomainMarketing, solidOutput)
	// Marketing weights probable at 0.50, canonical at 0.15; the aggregates
	// only coincide when all three axes tie.
	if rec.Logical != rec.Probable {
		assert.NotEqual(t, rec.IV, rec.DomainQuality)
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func snapshotWeights(t *testing.T) {
	t.Helper()
	orig := make(map[contracts.Domain][3]float64, len(domainWeights))
	for d, w := range domainWeights {
		orig[d] = w
	}
	t.Cleanup(func() { domainWeights = orig })
}

func TestLoadDomainWeightsOverlay(t *testing.T) {
	snapshotWeights(t)

	path := filepath.Join(t.TempDir(), "taes_weights.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"technical": {"logical": 0.2, "practical": 0.2, "probable": 0.6},
		"default": {"logical": 0.1, "practical": 0.1, "probable": 0.8},
		"lopsided": {"logical": 0.9, "practical": 0.9, "probable": 0.9}
	}`), 0o644))
	LoadDomainWeights(path, quietLogger())

	assert.Equal(t, [3]float64{0.2, 0.2, 0.6}, domainWeights[contracts.DomainTechnical])
	// Rows whose weights do not sum to one are rejected.
	_, ok := domainWeights[contracts.Domain("lopsided")]
	assert.False(t, ok)

	// A domain without a row of its own falls back to the default row.
	rec := Evaluate(contracts.RoleStrategist, contracts.Domain(""), solidOutput)
	want := round3(0.1*rec.Logical + 0.1*rec.Practical + 0.8*rec.Probable)
	assert.InDelta(t, want, rec.DomainQuality, 1e-9)
}

func TestLoadDomainWeightsMissingOrBrokenFileKeepsTable(t *testing.T) {
	snapshotWeights(t)
	before := domainWeights[contracts.DomainTechnical]

	LoadDomainWeights(filepath.Join(t.TempDir(), "absent.json"), quietLogger())
	assert.Equal(t, before, domainWeights[contracts.DomainTechnical])

	path := filepath.Join(t.TempDir(), "taes_weights.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	LoadDomainWeights(path, quietLogger())
	assert.Equal(t, before, domainWeights[contracts.DomainTechnical])
}

func TestContradictionRaisesIRD(t *testing.T) {
	clean := Evaluate(contracts.RoleAnalyst, contracts.DomainTechnical, solidOutput)
	dirty := Evaluate(contracts.RoleAnalyst, contracts.DomainTechnical,
		solidOutput+" The design is both more secure and less secure.")
	assert.Greater(t, dirty.IRD, clean.IRD)
	assert.Greater(t, dirty.ContradictionCount, 0)
}

func TestRequiresReconciliationFlag(t *testing.T) {
	vague := strings.Repeat("maybe this could be possibly fine somewhat ", 20)
	rec := Evaluate(contracts.RoleProducer, contracts.DomainCreative, vague)
	assert.Greater(t, rec.IRD, RRPThreshold)
	assert.True(t, rec.RequiresReconciliation)
}

func TestReconcileShiftsWeights(t *testing.T) {
	rec := Reconcile(contracts.RoleProducer, contracts.DomainCreative, solidOutput)
	assert.True(t, rec.Reconciled)
	want := round3(0.3*rec.Logical + 0.3*rec.Practical + 0.4*rec.Probable)
	assert.InDelta(t, want, rec.IV, 1e-9)
}

func TestSummarizeLongOutput(t *testing.T) {
	long := strings.Repeat("a", 2000) + strings.Repeat("z", 2000)
	s := Summarize(long)
	assert.Less(t, len(s), len(long))
	assert.True(t, strings.HasPrefix(s, "a"))
	assert.True(t, strings.HasSuffix(s, "z"))

	short := "short output"
	assert.Equal(t, short, Summarize(short))
}

func TestIRDLogAppendAndDisalignment(t *testing.T) {
	dir := t.TempDir()
	log := NewIRDLog(filepath.Join(dir, "ird_log.csv"))

	high := contracts.TAESRecord{Role: contracts.RoleCritic, IRD: 0.8, IV: 0.2}
	for i := 0; i < 5; i++ {
		require.NoError(t, log.Append("sess-1", high, "fail"))
	}

	alert := log.CheckDisalignment(0.4)
	assert.True(t, alert.Alert)
	assert.InDelta(t, 0.8, alert.AvgIRD, 1e-9)
	assert.Contains(t, alert.Reason, "Reality Gap")

	low := contracts.TAESRecord{Role: contracts.RoleCritic, IRD: 0.1, IV: 0.7}
	for i := 0; i < 20; i++ {
		require.NoError(t, log.Append("sess-2", low, "ok"))
	}
	alert = log.CheckDisalignment(0.4)
	assert.False(t, alert.Alert)
	assert.InDelta(t, 0.1, alert.AvgIRD, 1e-9)
}

func TestIRDLogRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ird_log.csv")
	log := NewIRDLog(path)

	// Pre-seed an oversized file to force rotation on next append.
	require.NoError(t, os.WriteFile(path, make([]byte, maxLogBytes+1), 0o644))
	require.NoError(t, log.Append("sess-3", contracts.TAESRecord{Role: contracts.RoleCritic}, "ok"))

	_, err := os.Stat(path + ".1")
	assert.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(maxLogBytes))
}

func TestDisalignmentMissingFile(t *testing.T) {
	log := NewIRDLog(filepath.Join(t.TempDir(), "absent.csv"))
	assert.False(t, log.CheckDisalignment(0.4).Alert)
}
