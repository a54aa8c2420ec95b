package orchestration

import (
	"strings"

	"github.com/axprotocol/core/pkg/detection"
)

// Redundancy thresholds: at softThreshold the chain attaches a REDUNDANCY
// soft signal, above retryThreshold it burns the strict re-prompt trying to
// get distinct output.
const (
	redundancySoftThreshold  = 0.55
	redundancyRetryThreshold = 0.60
	shingleSize              = 3
)

// shingles returns the word trigram set of normalized text.
func shingles(text string, n int) map[string]struct{} {
	words := strings.Fields(detection.Normalize(text))
	out := make(map[string]struct{})
	if len(words) < n {
		return out
	}
	for i := 0; i+n <= len(words); i++ {
		out[strings.Join(words[i:i+n], " ")] = struct{}{}
	}
	return out
}

// redundancyScore is the Jaccard similarity between the current text's
// trigram set and the union of all upstream texts' trigrams. The union is a
// conservative upper bound: overlapping any prior role counts.
func redundancyScore(current string, prior []string) float64 {
	if current == "" || len(prior) == 0 {
		return 0
	}
	cur := shingles(current, shingleSize)
	if len(cur) == 0 {
		return 0
	}
	union := make(map[string]struct{})
	for _, p := range prior {
		for s := range shingles(p, shingleSize) {
			union[s] = struct{}{}
		}
	}
	if len(union) == 0 {
		return 0
	}
	inter := 0
	total := len(union)
	for s := range cur {
		if _, ok := union[s]; ok {
			inter++
		} else {
			total++
		}
	}
	return float64(inter) / float64(total)
}

// uniquenessNudge is appended to a redundancy re-prompt so the role produces
// genuinely new material instead of a paraphrase.
var uniquenessNudges = map[string]string{
	"Strategist": "Remove checklist/rationale overlap. Introduce distinct positioning, unique audiences/hooks, and a different three-step plan.",
	"Analyst":    "Do not restate strategy prose. Add new KPI rows, falsification tests, and risks not mentioned upstream.",
	"Producer":   "Produce concrete asset bodies, not plan summaries. Each asset must add material absent upstream.",
	"Courier":    "Emit only schedule rows. Do not restate asset bodies or strategy language.",
	"Critic":     "Critique with new observations. Do not quote upstream artifacts beyond their ids.",
}
