package orchestration

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/axprotocol/core/pkg/contracts"
)

// extractRoleJSON pulls the JSON payload out of a role completion.
//
// Preference order: the first fenced block tagged with the role letter
// (```S), then the first ```json block, then the first bare JSON array.
// A tagged or json fence must contain JSON and nothing else; trailing
// narrative inside the fence is a parse failure, not something to salvage.
func extractRoleJSON(text string, kind contracts.ArtifactKind) ([]byte, error) {
	if frag, found := fencedBlock(text, string(kind)); found {
		return validateFragment(frag)
	}
	if frag, found := fencedBlock(text, "json"); found {
		return validateFragment(frag)
	}
	if frag := firstJSONArray(text); frag != "" {
		return validateFragment(frag)
	}
	return nil, fmt.Errorf("no JSON payload found in role output")
}

// extractObjectJSON is the same preference order for object-shaped outputs
// (the Caller role).
func extractObjectJSON(text, tag string) ([]byte, error) {
	if frag, found := fencedBlock(text, tag); found {
		return validateFragment(frag)
	}
	if frag, found := fencedBlock(text, "json"); found {
		return validateFragment(frag)
	}
	if frag := firstJSONObject(text); frag != "" {
		return validateFragment(frag)
	}
	return nil, fmt.Errorf("no JSON payload found in role output")
}

func fencedBlock(text, tag string) (string, bool) {
	re := regexp.MustCompile("(?s)```" + regexp.QuoteMeta(tag) + "[ \t]*\n(.*?)```")
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// validateFragment requires the fragment to be exactly one JSON value.
func validateFragment(frag string) ([]byte, error) {
	dec := json.NewDecoder(strings.NewReader(frag))
	var v json.RawMessage
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON in role output: %w", err)
	}
	if rest := strings.TrimSpace(frag[dec.InputOffset():]); rest != "" {
		return nil, fmt.Errorf("trailing narrative after JSON in role output")
	}
	return []byte(v), nil
}

func firstJSONArray(text string) string {
	return firstBalanced(text, '[', ']')
}

func firstJSONObject(text string) string {
	return firstBalanced(text, '{', '}')
}

// firstBalanced scans for the first balanced bracket run, string-aware.
func firstBalanced(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
