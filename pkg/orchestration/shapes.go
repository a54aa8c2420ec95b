package orchestration

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/detection"
)

// RoleShape is the banned-output policy for one role: phrase and regex
// patterns the role must never emit. Producer must not schedule, Courier
// must not invent assets, and so on.
type RoleShape struct {
	Banned      []string `json:"banned"`
	BannedRegex []string `json:"banned_regex"`
}

// RoleShapes maps role names to their shape policies.
type RoleShapes map[string]RoleShape

// LoadRoleShapes reads the role-shape config. A missing file yields an empty
// policy set: shape checks are a quality gate, not a trust boundary.
func LoadRoleShapes(path string) (RoleShapes, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return RoleShapes{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("role shapes: %w", err)
	}
	var shapes RoleShapes
	if err := json.Unmarshal(raw, &shapes); err != nil {
		return nil, fmt.Errorf("role shapes parse: %w", err)
	}
	return shapes, nil
}

// Violation returns the first banned pattern the text matches, or "".
func (s RoleShapes) Violation(role contracts.RoleName, text string) string {
	spec, ok := s[string(role)]
	if !ok {
		spec, ok = s[strings.ToLower(string(role))]
		if !ok {
			return ""
		}
	}
	haystack := detection.Normalize(text)
	for _, phrase := range spec.Banned {
		if phrase != "" && strings.Contains(haystack, detection.Normalize(phrase)) {
			return phrase
		}
	}
	for _, pattern := range spec.BannedRegex {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		if re.MatchString(text) {
			return pattern
		}
	}
	return ""
}
