// Package detection implements the string-level governance signal detectors.
// Detectors are deterministic: the same text always yields the same signals.
package detection

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize lowers text into NFC, case-folded form so phrase matching is not
// defeated by composed characters or locale-specific casing.
func Normalize(s string) string {
	return folder.String(norm.NFC.String(s))
}

// tokenize splits normalized text into rough word tokens.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ',', ';', ':', '(', ')', '[', ']', '{', '}', '"', '\'':
			return true
		}
		return false
	})
}

// sentences splits text on terminal punctuation. Good enough for the
// windowed contradiction scan; we are not parsing prose.
func sentences(s string) []string {
	var out []string
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if t := strings.TrimSpace(b.String()); t != "" {
				out = append(out, t)
			}
			b.Reset()
		}
	}
	if t := strings.TrimSpace(b.String()); t != "" {
		out = append(out, t)
	}
	return out
}

func snippet(s string, idx, width int) string {
	lo := idx - width
	if lo < 0 {
		lo = 0
	}
	hi := idx + width
	if hi > len(s) {
		hi = len(s)
	}
	return strings.TrimSpace(s[lo:hi])
}
