package directives

import (
	"fmt"
	"strings"

	"github.com/axprotocol/core/pkg/contracts"
)

// briefings are one-line condensations of each directive family, injected
// into every role prompt so the full corpus is only carried by the role that
// enforces it.
var briefings = map[string]string{
	"d0":   "Observe Change Control (D0): record kernel modifications, maintain directive parity, enforce version integrity, rollback authority reserved to Operator.",
	"core": "Enforce Core Directives (1-14): truth discipline, logic integrity, contradiction detection.",
	"add":  "Apply War-Room Addendum (15-19): objective grounding, scoring >=85, handoff, efficiency, client-readiness.",
	"aal":  "Respect Authority Assertion (20-24): Operator supremacy, CAM lease, immutable ledger, killchain, drift monitor.",
	"taes": "Use TAES (25-25c): weigh Logical/Practical/Probable, IRD>0.5 -> RRP.",
	"rdl":  "Red-Team Layer (26-28): falsification MAS, CV detection, residual risk, structured dissent.",
}

// collabContract is appended to every role system prompt so artifacts stay
// complementary and cross-referenced instead of restating upstream work.
const collabContract = "\nCollaboration Contract:\n" +
	"- Build on prior roles; do not restate their sections.\n" +
	"- Introduce new artifacts and assign stable IDs (S-1, A-1, P-1, C-1).\n" +
	"- Cross-reference upstream IDs wherever applicable.\n" +
	"- Prefer depth and specificity over general prose.\n"

type roleConfig struct {
	include []string
	askFull string
	temp    float64
}

// Each role carries the full text of the family it enforces and briefings
// for the rest. Temperatures are staggered to reduce cross-role mimicry.
var roleConfigs = map[contracts.RoleName]roleConfig{
	contracts.RoleStrategist: {include: []string{"d0", "core", "add"}, askFull: "CORE", temp: 0.30},
	contracts.RoleAnalyst:    {include: []string{"d0", "core", "taes"}, askFull: "TAES", temp: 0.20},
	contracts.RoleProducer:   {include: []string{"d0", "add", "core"}, askFull: "ADD", temp: 0.65},
	contracts.RoleCourier:    {include: []string{"d0", "add", "aal"}, askFull: "AAL", temp: 0.35},
	contracts.RoleCritic:     {include: []string{"d0", "core", "rdl", "taes", "aal"}, askFull: "RDL", temp: 0.25},
}

// SystemFor composes the system prompt for a chained role: role prompt,
// briefings in loadout order, the full text of the enforced family, then the
// collaboration contract.
func SystemFor(role contracts.RoleName, rolePrompt string, set Set) string {
	cfg, ok := roleConfigs[role]
	if !ok {
		return strings.TrimSpace(rolePrompt) + "\n" + collabContract
	}

	var buf []string
	if rolePrompt != "" {
		buf = append(buf, strings.TrimSpace(rolePrompt))
	}
	for _, k := range cfg.include {
		if b, ok := briefings[k]; ok {
			buf = append(buf, b)
		}
	}
	if full, ok := set[cfg.askFull]; ok {
		rule := strings.Repeat("=", 80)
		buf = append(buf, fmt.Sprintf("\n%s\nFULL DIRECTIVE: %s\n%s\n%s", rule, cfg.askFull, rule, full))
	}
	buf = append(buf, collabContract)
	return strings.Join(buf, "\n\n")
}

// Temperature returns the sampling temperature for a chained role.
func Temperature(role contracts.RoleName) float64 {
	if cfg, ok := roleConfigs[role]; ok {
		return cfg.temp
	}
	return 0.3
}
