// Package directives loads the governance directive corpus from markdown
// files and composes role system prompts from it.
package directives

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Set is the loaded directive corpus keyed by family.
type Set map[string]string

// Families and the markdown files that carry them.
var directiveFiles = map[string]string{
	"D0":   "D0_CHANGE_CONTROL.md",
	"CORE": "CORE_DIRECTIVES.md",
	"ADD":  "WARROOM_ADDENDUM.md",
	"AAL":  "AUTHORITY_LAYER.md",
	"TAES": "TAES_EVALUATION.md",
	"RDL":  "REDTEAM_LAYER.md",
}

// Files returns the fixed directive corpus file names in sorted order. The
// config fingerprint pins exactly this list, so a deleted file shows up as a
// missing-file sentinel instead of silently dropping out.
func Files() []string {
	names := make([]string, 0, len(directiveFiles))
	for _, n := range directiveFiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Loader reads and caches the directive corpus. The cache holds one corpus
// per directory; governance edits require a restart, which is what pins the
// config fingerprint anyway.
type Loader struct {
	mu    sync.Mutex
	cache map[string]Set
}

func NewLoader() *Loader {
	return &Loader{cache: make(map[string]Set)}
}

// Load reads every directive family from dir. A missing file contributes the
// sentinel "[Missing: name]" rather than an error, so a partially provisioned
// install still composes prompts and the gap is visible in them.
func (l *Loader) Load(dir string) Set {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.cache[dir]; ok {
		return s
	}
	s := make(Set, len(directiveFiles))
	for family, name := range directiveFiles {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			s[family] = fmt.Sprintf("[Missing: %s]", name)
			continue
		}
		s[family] = string(raw)
	}
	l.cache[dir] = s
	return s
}

// Missing reports the directive families whose files were absent.
func (s Set) Missing() []string {
	var out []string
	for family, text := range s {
		if strings.HasPrefix(text, "[Missing: ") {
			out = append(out, family)
		}
	}
	return out
}
