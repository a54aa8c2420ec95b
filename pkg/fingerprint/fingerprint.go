// Package fingerprint computes the deterministic configuration fingerprint
// stamped onto every ledger entry. Two installs with byte-identical
// governance inputs produce the same fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/axprotocol/core/pkg/canonicalize"
)

// Prefix marks fingerprint strings so they are not mistaken for bare hashes.
const Prefix = "sha256:"

// Compute hashes the given config files into one fingerprint.
//
// Files are processed in sorted path order. JSON files are normalized by
// canonical re-serialization before hashing so whitespace or key-order edits
// do not change the fingerprint; all other files hash as raw bytes. A missing
// file contributes the sentinel "[MISSING: path]" instead of aborting, so the
// fingerprint still pins the absence.
func Compute(paths []string) (string, error) {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, p := range sorted {
		fmt.Fprintf(h, "%s\n", p)
		raw, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintf(h, "[MISSING: %s]\n", p)
				continue
			}
			return "", fmt.Errorf("fingerprint: read %s: %w", p, err)
		}
		h.Write(normalize(p, raw))
		h.Write([]byte("\n"))
	}
	return Prefix + hex.EncodeToString(h.Sum(nil)), nil
}

func normalize(path string, raw []byte) []byte {
	if !strings.HasSuffix(path, ".json") {
		return raw
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		// Malformed JSON hashes as-is; the loader will reject it separately.
		return raw
	}
	canonical, err := canonicalize.JCS(v)
	if err != nil {
		return raw
	}
	return canonical
}
