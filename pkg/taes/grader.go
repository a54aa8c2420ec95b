package taes

import (
	"regexp"
	"strings"

	"github.com/axprotocol/core/pkg/detection"
)

// Heuristic graders. They are deliberately simple and fully deterministic:
// the same text always produces the same sub-scores. Each axis starts from a
// neutral base and moves on observable markers of the quality it measures.

var (
	connectives    = []string{"because", "therefore", "so that", "which means", "hence", "as a result"}
	structureShape = regexp.MustCompile(`(?m)^\s*(?:[-*]|\d+[.)])\s+`)
	numberShape    = regexp.MustCompile(`\d`)
)

// gradeLogical measures internal consistency: argumentative connectives and
// list structure raise it, detected contradictions pull it down hard.
func gradeLogical(text string, contradictions int) float64 {
	t := detection.Normalize(text)
	score := 0.60
	for _, c := range connectives {
		if strings.Contains(t, c) {
			score += 0.05
		}
	}
	if structureShape.MatchString(text) {
		score += 0.10
	}
	score -= 0.15 * float64(contradictions)
	return clamp01(score)
}

var constraintTokens = []string{
	"budget", "deadline", "constraint", "owner", "timeline", "resource",
	"dependency", "cost", "capacity", "risk",
}

// gradePractical measures execution feasibility: named constraints and
// concrete numbers raise it, hedge pile-ups pull it down.
func gradePractical(text string, hedges int) float64 {
	t := detection.Normalize(text)
	score := 0.55
	for _, c := range constraintTokens {
		if strings.Contains(t, c) {
			score += 0.04
		}
	}
	if numberShape.MatchString(text) {
		score += 0.10
	}
	score -= 0.03 * float64(hedges)
	return clamp01(score)
}

var behaviorTokens = []string{
	"audience", "user", "customer", "reader", "attention", "habit",
	"drop-off", "friction", "incentive", "follow-up", "response rate",
}

// gradeProbable measures human-behavior realism: audience-aware language
// raises it, unevidenced certainty pulls it down.
func gradeProbable(text string) float64 {
	t := detection.Normalize(text)
	score := 0.55
	for _, b := range behaviorTokens {
		if strings.Contains(t, b) {
			score += 0.04
		}
	}
	if detection.Overconfidence(text).Detected {
		score -= 0.20
	}
	return clamp01(score)
}
