package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validS = `[{"s_id":"S-1","title":"Launch plan","audience":"SMB owners","hooks":["fast wins"],"three_step_plan":["map","build","ship"],"acceptance_tests":["signup rate tracked"]}]`

func TestStrategiesValid(t *testing.T) {
	items, res := Strategies([]byte(validS))
	require.True(t, res.OK, res.Message)
	require.Len(t, items, 1)
	assert.Equal(t, "S-1", items[0].SID)
}

func TestStrategiesRejectsMissingKeysAndEmpty(t *testing.T) {
	_, res := Strategies([]byte(`[{"s_id":"S-1","title":"x"}]`))
	assert.False(t, res.OK)
	assert.Equal(t, "schema", res.Reason)

	_, res = Strategies([]byte(`[]`))
	assert.False(t, res.OK)

	_, res = Strategies([]byte(`not json`))
	assert.False(t, res.OK)
}

func TestAnalysesRefIntegrity(t *testing.T) {
	raw := []byte(`[{"a_id":"A-1","s_refs":["S-1","S-9"],"kpi_table":[{"metric":"signups","target":100,"unit":"count"}],"falsifications":["no lift after 2 weeks"]}]`)

	_, res := Analyses(raw, []string{"S-1"})
	require.False(t, res.OK)
	assert.Equal(t, "refs", res.Reason)
	assert.Contains(t, res.Message, "S-9")

	items, res := Analyses(raw, []string{"S-1", "S-9"})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "A-1", items[0].AID)
}

func TestProductionsSpecTypeEnum(t *testing.T) {
	bad := []byte(`[{"p_id":"P-1","a_refs":["A-1"],"spec_type":"sculpture","body":"x"}]`)
	_, res := Productions(bad, []string{"A-1"})
	assert.False(t, res.OK)
	assert.Equal(t, "schema", res.Reason)

	good := []byte(`[{"p_id":"P-1","a_refs":["A-1"],"spec_type":"copy_block","body":"subject line draft"}]`)
	items, res := Productions(good, []string{"A-1"})
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "P-1", items[0].PID)
}

func TestCourierUndeclaredAssets(t *testing.T) {
	raw := []byte(`[
		{"day":"Mon","time":"09:00","channel":"email","p_id":"P-1","kpi_target":"2% CTR","owner_action":"send"},
		{"day":"Tue","time":"10:00","channel":"social","p_id":"P-4","kpi_target":"50 likes","owner_action":"post"}
	]`)

	_, res := CourierRows(raw, []string{"P-1", "P-2"})
	require.False(t, res.OK)
	assert.Equal(t, "undeclared_assets", res.Reason)
	assert.Equal(t, "Courier used undeclared assets: {P-4}", res.Message)

	rows, res := CourierRows(raw, []string{"P-1", "P-4"})
	require.True(t, res.OK, res.Message)
	assert.Len(t, rows, 2)
}

const validX = `[{
	"x_id":"X-1",
	"refs":{"s":["S-1"],"a":["A-1"],"p":["P-1"]},
	"issue":"KPI target unverifiable",
	"fix":"tie target to tracked event",
	"severity":"med",
	"proof_scores":{"logical":0.8,"practical":0.7,"probable":0.6,"evidence":0.5,"consistency":0.9}
}]`

func TestCritiquesValid(t *testing.T) {
	items, res := Critiques([]byte(validX), []string{"S-1"}, []string{"A-1"}, []string{"P-1"}, nil)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "X-1", items[0].XID)
}

func TestCritiquesSpanRequirement(t *testing.T) {
	raw := []byte(`[{
		"x_id":"X-1","refs":{"s":["S-1"]},"issue":"i","fix":"f","severity":"low",
		"proof_scores":{"a":1,"b":1,"c":1,"d":1,"e":1}
	}]`)
	_, res := Critiques(raw, []string{"S-1"}, nil, nil, nil)
	require.False(t, res.OK)
	assert.Equal(t, "span", res.Reason)
}

func TestCritiquesProofScoreCardinality(t *testing.T) {
	raw := []byte(`[{
		"x_id":"X-1","refs":{"s":["S-1"],"a":["A-1"],"p":["P-1"]},"issue":"i","fix":"f","severity":"high",
		"proof_scores":{"logical":0.5,"practical":0.5}
	}]`)
	_, res := Critiques(raw, []string{"S-1"}, []string{"A-1"}, []string{"P-1"}, nil)
	require.False(t, res.OK)
	assert.Equal(t, "schema", res.Reason)
}

func TestCritiquesUnknownRefs(t *testing.T) {
	_, res := Critiques([]byte(validX), []string{"S-1"}, []string{"A-1"}, []string{"P-9"}, nil)
	require.False(t, res.OK)
	assert.Equal(t, "refs", res.Reason)
	assert.Contains(t, res.Message, "P-1")
}

func TestCallerStates(t *testing.T) {
	out, res := Caller([]byte(`{"status":"proceed","payload":{"objective":"grow newsletter"}}`))
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "grow newsletter", out.Payload.Objective)

	out, res = Caller([]byte(`{"status":"terminate","response":"objective is out of scope"}`))
	require.True(t, res.OK, res.Message)
	assert.Equal(t, "objective is out of scope", out.Response)

	_, res = Caller([]byte(`{"status":"proceed"}`))
	assert.False(t, res.OK)

	_, res = Caller([]byte(`{"status":"unknown"}`))
	assert.False(t, res.OK)
}
