package detection

import (
	"math"
	"regexp"
	"strings"
)

var secretPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"aws_access_key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"gcp_api_key", regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{35}\b`)},
	{"stripe_live_key", regexp.MustCompile(`\bsk_live_[0-9a-zA-Z]{16,}\b`)},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`)},
	{"private_key_block", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
}

var base64Candidate = regexp.MustCompile(`\b[A-Za-z0-9+/]{40,}={0,2}\b`)

// Secrets scans for credential shapes: provider key prefixes, JWT triplets,
// PEM blocks, and long high-entropy base64 runs.
func Secrets(text string) Signal {
	for _, p := range secretPatterns {
		if loc := p.re.FindStringIndex(text); loc != nil {
			return Signal{Name: SignalSecrets, Detected: true, Evidence: p.name}
		}
	}
	for _, cand := range base64Candidate.FindAllString(text, 8) {
		if shannonEntropy(cand) > 4.5 {
			return Signal{Name: SignalSecrets, Detected: true, Evidence: "high_entropy_base64"}
		}
	}
	return Signal{Name: SignalSecrets}
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	freq := map[rune]int{}
	for _, r := range s {
		freq[r]++
	}
	n := float64(len(s))
	h := 0.0
	for _, c := range freq {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// Redact masks detected secret substrings for safe inclusion in evidence or
// logs. Only the first and last four characters survive.
func Redact(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
