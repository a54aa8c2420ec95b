package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axprotocol/core/pkg/contracts"
)

func TestExtractRoleJSONTaggedFence(t *testing.T) {
	text := "Here is my plan.\n```S\n[{\"s_id\": \"S-1\"}]\n```\nDone."
	raw, err := extractRoleJSON(text, contracts.KindStrategy)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"s_id": "S-1"}]`, string(raw))
}

func TestExtractRoleJSONFallsBackToJSONFence(t *testing.T) {
	text := "```json\n[{\"a_id\": \"A-1\"}]\n```"
	raw, err := extractRoleJSON(text, contracts.KindAnalysis)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a_id": "A-1"}]`, string(raw))
}

func TestExtractRoleJSONBareArray(t *testing.T) {
	text := `The result is [{"p_id": "P-1"}] as requested.`
	raw, err := extractRoleJSON(text, contracts.KindProduction)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"p_id": "P-1"}]`, string(raw))
}

func TestExtractRoleJSONPrefersRoleTag(t *testing.T) {
	text := "```json\n[{\"from\": \"json\"}]\n```\n```S\n[{\"from\": \"tagged\"}]\n```"
	raw, err := extractRoleJSON(text, contracts.KindStrategy)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"from": "tagged"}]`, string(raw))
}

func TestExtractRoleJSONRejectsTrailingNarrative(t *testing.T) {
	text := "```S\n[{\"s_id\": \"S-1\"}]\nAnd that is why it works.\n```"
	_, err := extractRoleJSON(text, contracts.KindStrategy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing narrative")
}

func TestExtractRoleJSONNoPayload(t *testing.T) {
	_, err := extractRoleJSON("no structured output here", contracts.KindCourier)
	require.Error(t, err)
}

func TestExtractObjectJSON(t *testing.T) {
	text := "Verdict below.\n```json\n{\"status\": \"proceed\"}\n```"
	raw, err := extractObjectJSON(text, "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status": "proceed"}`, string(raw))
}

func TestFirstBalancedIgnoresBracketsInStrings(t *testing.T) {
	text := `prefix [{"note": "a ] inside a string"}] suffix`
	frag := firstJSONArray(text)
	assert.Equal(t, `[{"note": "a ] inside a string"}]`, frag)
}

func TestFirstBalancedUnclosed(t *testing.T) {
	assert.Empty(t, firstJSONArray(`[{"open": true`))
}
