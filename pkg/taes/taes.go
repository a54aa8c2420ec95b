// Package taes implements the tri-axis evaluation metric: logical, practical
// and probable sub-scores, the Integrity Vector (IV) derived from them, and
// the Ideal-Reality Disparity (IRD) that flags outputs that look great on
// paper and fail in reality.
package taes

import (
	"math"

	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/detection"
)

// Canonical IV weights. Governance gates operate on this aggregate
// regardless of domain.
const (
	wLogical   = 0.50
	wPractical = 0.35
	wProbable  = 0.15
)

// Reconciliation weights shift emphasis toward probable for the Reality
// Reconciliation Pass.
const (
	rrpLogical   = 0.30
	rrpPractical = 0.30
	rrpProbable  = 0.40
)

// IRD thresholds: above Baseline the gap starts accruing; above RRPThreshold
// the record is marked for reconciliation.
const (
	irdBaseline  = 0.65
	RRPThreshold = 0.50
)

// Outputs longer than summarizeAbove are reduced to head+tail before scoring
// so framing and conclusion both survive.
const (
	summarizeAbove = 2500
	headChars      = 1500
	tailChars      = 1000
)

// domainWeights aggregate the same sub-scores into a domain-flavored quality
// figure reported alongside IV. This is the built-in table; taes_weights.json
// overlays it at startup via LoadDomainWeights.
var domainWeights = map[contracts.Domain][3]float64{
	contracts.DomainTechnical: {0.60, 0.35, 0.05},
	contracts.DomainOps:       {0.40, 0.45, 0.15},
	contracts.DomainMarketing: {0.30, 0.20, 0.50},
	contracts.DomainCreative:  {0.35, 0.25, 0.40},
	contracts.DomainEducation: {0.45, 0.35, 0.20},
	contracts.DomainProduct:   {0.40, 0.40, 0.20},
	contracts.DomainStrategy:  {0.45, 0.35, 0.20},
	contracts.DomainResearch:  {0.55, 0.30, 0.15},
	contracts.DomainFinance:   {0.50, 0.35, 0.15},
}

// Evaluate scores one role output with canonical weights.
func Evaluate(role contracts.RoleName, domain contracts.Domain, text string) contracts.TAESRecord {
	return evaluate(role, domain, text, wLogical, wPractical, wProbable)
}

// Reconcile re-scores the same text with probable-shifted weights for the
// Reality Reconciliation Pass. It deliberately does not re-invoke the role:
// the pass re-weighs the evidence already on the table, so the verdict stays
// deterministic and costs no extra model call.
func Reconcile(role contracts.RoleName, domain contracts.Domain, text string) contracts.TAESRecord {
	rec := evaluate(role, domain, text, rrpLogical, rrpPractical, rrpProbable)
	rec.Reconciled = true
	return rec
}

func evaluate(role contracts.RoleName, domain contracts.Domain, text string, wl, wp, wpr float64) contracts.TAESRecord {
	scored := Summarize(text)

	_, contradictions := detection.Contradiction(scored)
	_, hedges := detection.Ambiguity(scored)

	logical := gradeLogical(scored, contradictions)
	practical := gradePractical(scored, hedges)
	probable := gradeProbable(scored)

	iv := round3(wl*logical + wp*practical + wpr*probable)
	ird := round3(math.Max(0, irdBaseline-iv) + 0.05*float64(contradictions) + 0.02*float64(hedges))

	dq := iv
	if w, ok := domainWeights[domain]; ok {
		dq = round3(w[0]*logical + w[1]*practical + w[2]*probable)
	} else if w, ok := domainWeights[defaultDomainKey]; ok {
		dq = round3(w[0]*logical + w[1]*practical + w[2]*probable)
	}

	return contracts.TAESRecord{
		Role:                   role,
		Domain:                 domain,
		Logical:                round3(logical),
		Practical:              round3(practical),
		Probable:               round3(probable),
		IV:                     iv,
		DomainQuality:          dq,
		IRD:                    ird,
		ContradictionCount:     contradictions,
		HedgeCount:             hedges,
		RequiresReconciliation: ird > RRPThreshold,
	}
}

// Summarize reduces long outputs to head+tail before scoring.
func Summarize(text string) string {
	if len(text) <= summarizeAbove {
		return text
	}
	return text[:headChars] + "\n...\n" + text[len(text)-tailChars:]
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func clamp01(f float64) float64 {
	return math.Min(1, math.Max(0, f))
}
