package orchestration

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/axprotocol/core/pkg/contracts"
)

// DefaultDomain is the fallback when a domain has no prompt files of its own.
const DefaultDomain = contracts.DomainStrategy

// loadRolePrompt resolves `<prompts_dir>/<domain>/<role>_stable.txt`,
// falling back to the default domain. A missing default is fatal at session
// start; the chain cannot run a role without its prompt.
func loadRolePrompt(promptsDir string, domain contracts.Domain, role contracts.RoleName) (string, error) {
	name := strings.ToLower(string(role)) + "_stable.txt"
	for _, d := range []contracts.Domain{domain, DefaultDomain} {
		raw, err := os.ReadFile(filepath.Join(promptsDir, string(d), name))
		if err == nil {
			return string(raw), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("role prompt %s/%s: %w", d, name, err)
		}
	}
	return "", fmt.Errorf("role prompt %s missing for domain %s and default %s", name, domain, DefaultDomain)
}

// loadRoleExample reads the versioned one-shot example used by the strict
// re-prompt, truncated to 800 characters.
func loadRoleExample(promptsDir string, role contracts.RoleName) string {
	raw, err := os.ReadFile(filepath.Join(promptsDir, "examples", strings.ToLower(string(role))+".md"))
	if err != nil {
		return ""
	}
	s := string(raw)
	if len(s) > 800 {
		s = s[:800]
	}
	return s
}

// User prompt builders. Each role sees a curated slice: the objective, the
// registry sections it needs, and at most one Q&A note. Never the full
// upstream prose.

func strategistPrompt(objective string) string {
	return fmt.Sprintf(
		"Objective: %s\n\nProduce strategy candidates as a fenced JSON array tagged S.\n"+
			"Each object: {\"s_id\", \"title\", \"audience\", \"hooks\", \"three_step_plan\", \"acceptance_tests\"}.",
		objective)
}

func analystPrompt(objective string, strategies []contracts.Strategy) string {
	return fmt.Sprintf(
		"Objective: %s\n\nStrategies (S):\n%s\n\nProduce analyses as a fenced JSON array tagged A.\n"+
			"Each object: {\"a_id\", \"s_refs\", \"kpi_table\", \"falsifications\", \"risks\"}. Every s_ref must name an existing S id.",
		objective, mustCompactJSON(strategies))
}

func producerPrompt(objective string, analyses []contracts.Analysis, qaNote string) string {
	b := fmt.Sprintf(
		"Objective: %s\n\nAnalyses (A):\n%s\n",
		objective, mustCompactJSON(analyses))
	if qaNote != "" {
		b += "\nClarification note:\n" + qaNote + "\n"
	}
	b += "\nProduce assets as a fenced JSON array tagged P.\n" +
		"Each object: {\"p_id\", \"a_refs\", \"spec_type\", \"body\"}. spec_type is one of api, ddl, config, copy_block, wiring, prompt_pack. Do not emit a schedule."
	return b
}

func courierPrompt(objective string, assets []contracts.Production, qaNote string) string {
	// Courier gets the explicit asset list, not the registry: ids only plus
	// spec types, so the schedule cannot quote asset bodies.
	type assetRef struct {
		PID      string             `json:"p_id"`
		SpecType contracts.SpecType `json:"spec_type"`
	}
	refs := make([]assetRef, len(assets))
	for i, a := range assets {
		refs[i] = assetRef{PID: a.PID, SpecType: a.SpecType}
	}
	b := fmt.Sprintf(
		"Objective: %s\n\nProducer assets (the only p_ids you may schedule):\n%s\n",
		objective, mustCompactJSON(refs))
	if qaNote != "" {
		b += "\nClarification note:\n" + qaNote + "\n"
	}
	b += "\nProduce a delivery schedule as a fenced JSON array tagged C.\n" +
		"Each row: {\"day\", \"time\", \"channel\", \"p_id\", \"kpi_target\", \"owner_action\"}. Do not emit new assets."
	return b
}

func criticPrompt(objective string, snapshot contracts.RegistrySnapshot) string {
	return fmt.Sprintf(
		"Objective: %s\n\nFull registry:\n%s\n\nProduce findings as a fenced JSON array tagged X.\n"+
			"Each object: {\"x_id\", \"refs\", \"issue\", \"fix\", \"severity\", \"proof_scores\"}. "+
			"refs must collectively span at least three of S/A/P/C; proof_scores has exactly five numeric dimensions.",
		objective, mustCompactJSON(snapshot))
}

func callerPrompt(objective string) string {
	return fmt.Sprintf(
		"Objective: %s\n\nTriage this objective. Reply with a fenced JSON object tagged json:\n"+
			"{\"status\": \"terminate\"|\"proceed\"|\"suggest_optimized_prompt_and_insight\", ...}.\n"+
			"terminate requires \"response\"; proceed requires {\"payload\": {\"objective\"}}; "+
			"suggest requires \"suggested_objective\", \"axp_insight\", \"user_confirmation_question\".",
		objective)
}

func mustCompactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
