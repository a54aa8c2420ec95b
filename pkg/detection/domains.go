package detection

import (
	"fmt"
	"sort"

	"github.com/axprotocol/core/pkg/contracts"
)

// domainKeywords are the bag-of-keywords lists used both for misroute
// detection and for the domain fallback when no label is supplied.
var domainKeywords = map[contracts.Domain][]string{
	contracts.DomainMarketing: {"campaign", "audience", "funnel", "conversion", "brand", "ctr", "email", "newsletter", "engagement", "lead"},
	contracts.DomainTechnical: {"api", "latency", "database", "deploy", "schema", "endpoint", "throughput", "bug", "refactor", "migration"},
	contracts.DomainOps:       {"runbook", "oncall", "incident", "sla", "capacity", "rollout", "monitoring", "escalation", "shift", "maintenance"},
	contracts.DomainCreative:  {"story", "script", "visual", "tone", "narrative", "scene", "character", "draft", "imagery", "voice"},
	contracts.DomainEducation: {"curriculum", "lesson", "student", "assessment", "learning", "course", "quiz", "module", "instructor", "syllabus"},
	contracts.DomainProduct:   {"roadmap", "feature", "user", "backlog", "mvp", "adoption", "retention", "persona", "onboarding", "prioritize"},
	contracts.DomainStrategy:  {"market", "positioning", "competitor", "moat", "expansion", "pricing", "segment", "partnership", "vision", "okr"},
	contracts.DomainResearch:  {"hypothesis", "experiment", "sample", "methodology", "literature", "finding", "significance", "cohort", "survey", "analysis"},
	contracts.DomainFinance:   {"revenue", "margin", "forecast", "budget", "cashflow", "cost", "roi", "valuation", "expense", "capital"},
}

// ScoreDomains scores text against every domain keyword bag.
func ScoreDomains(text string) map[contracts.Domain]int {
	t := Normalize(text)
	scores := make(map[contracts.Domain]int, len(domainKeywords))
	for d, words := range domainKeywords {
		for _, w := range words {
			scores[d] += countWordBounded(t, w)
		}
	}
	return scores
}

// DetectDomain picks the highest-scoring domain for an objective, falling
// back to strategy on a scoreless or tied-at-zero text.
func DetectDomain(objective string) contracts.Domain {
	d, _ := DetectDomainConfidence(objective)
	return d
}

// DetectDomainConfidence detects the domain and reports how dominant it is:
// the winner's share of all keyword hits, 0 when the text hit nothing. Low
// confidence on an auto-detected domain is a misroute risk in its own right.
func DetectDomainConfidence(objective string) (contracts.Domain, float64) {
	scores := ScoreDomains(objective)
	best := contracts.DomainStrategy
	bestScore, total := 0, 0
	keys := make([]contracts.Domain, 0, len(scores))
	for d := range scores {
		keys = append(keys, d)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, d := range keys {
		total += scores[d]
		if scores[d] > bestScore {
			best, bestScore = d, scores[d]
		}
	}
	if total == 0 {
		return best, 0
	}
	return best, float64(bestScore) / float64(total)
}

// Misroute fires when a role output's dominant keyword cluster disagrees
// with the declared domain by a clear margin.
func Misroute(declared contracts.Domain, text string) Signal {
	scores := ScoreDomains(text)
	declaredScore := scores[declared]

	var topDomain contracts.Domain
	top := 0
	keys := make([]contracts.Domain, 0, len(scores))
	for d := range scores {
		keys = append(keys, d)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, d := range keys {
		if scores[d] > top {
			topDomain, top = d, scores[d]
		}
	}

	// Margin of 2 avoids flapping on near-ties and keyword-sparse outputs.
	if top == 0 || topDomain == declared || top < declaredScore+2 {
		return Signal{Name: SignalMisroute}
	}
	return Signal{
		Name:     SignalMisroute,
		Detected: true,
		Evidence: fmt.Sprintf("declared %s scored %d, dominant %s scored %d", declared, declaredScore, topDomain, top),
	}
}
