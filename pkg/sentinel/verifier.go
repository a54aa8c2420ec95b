// Package sentinel independently verifies the audit ledger. It shares no
// state with the kernel beyond the ledger directory: it reads the JSONL
// segments and the published public key, recomputes every signature and hash,
// and writes verification reports. It never writes to the ledger itself.
package sentinel

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/axprotocol/core/pkg/canonicalize"
	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/crypto"
)

// Finding reasons. These are the complete failure taxonomy; every defect a
// verification can report maps to exactly one of them.
const (
	ReasonSigInvalid       = "sig_invalid"
	ReasonHashMismatch     = "hash_mismatch"
	ReasonInvalidJSON      = "invalid_json"
	ReasonChainBreak       = "chain_break"
	ReasonMissingPublicKey = "missing_public_key"
)

// Finding is one verification defect, located by segment file and line.
type Finding struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Seq    uint64 `json:"seq,omitempty"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

// Report is the outcome of one full ledger verification.
type Report struct {
	Verified    bool      `json:"verified"`
	GeneratedAt string    `json:"generated_at"`
	LedgerPath  string    `json:"ledger_path"`
	Segments    []string  `json:"segments"`
	Entries     int       `json:"entries"`
	Details     []Finding `json:"details"`
}

// Verify walks every ledger segment in chronological order and checks each
// entry three ways: the signature over the canonical fields, the recomputed
// this_hash, and the prev_hash linkage. Sealed segments verify before the
// active file; rollover entries must name the segment that follows them.
func Verify(ledgerPath string) (*Report, error) {
	report := &Report{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		LedgerPath:  ledgerPath,
		Details:     []Finding{},
	}

	segments, err := segmentsOf(ledgerPath)
	if err != nil {
		return nil, err
	}
	report.Segments = segments
	if len(segments) == 0 {
		report.Verified = true
		return report, nil
	}

	material, err := loadPublicMaterial(filepath.Dir(ledgerPath))
	if err != nil {
		report.Details = append(report.Details, Finding{
			File:   filepath.Dir(ledgerPath),
			Reason: ReasonMissingPublicKey,
			Error: err.Error(),
		})
		return report, nil
	}

	prevHash := contracts.GenesisHash
	prevKnown := true
	first := true

	for i, seg := range segments {
		f, err := os.Open(seg)
		if err != nil {
			return nil, fmt.Errorf("open segment: %w", err)
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 1<<20), 4<<20)
		line := 0
		base := filepath.Base(seg)

		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(strings.TrimSpace(string(raw))) == 0 {
				continue
			}
			report.Entries++

			var e contracts.LedgerEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				report.Details = append(report.Details, Finding{
					File: base, Line: line, Reason: ReasonInvalidJSON,
					Error: err.Error(),
				})
				// The chain cannot be anchored past an unreadable entry.
				prevKnown = false
				continue
			}

			canonical, err := canonicalize.JCS(e.CanonicalFields())
			if err != nil {
				report.Details = append(report.Details, Finding{
					File: base, Line: line, Seq: e.Seq, Reason: ReasonInvalidJSON,
					Error: fmt.Sprintf("canonicalize: %v", err),
				})
				prevKnown = false
				continue
			}

			valid, err := crypto.VerifyWithKey(material, e.SignerKeyID, canonical, e.Signature)
			if err != nil || !valid {
				detail := "signature does not verify over canonical fields"
				if err != nil {
					detail = err.Error()
				}
				report.Details = append(report.Details, Finding{
					File: base, Line: line, Seq: e.Seq, Reason: ReasonSigInvalid,
					Error: detail,
				})
			}

			if recomputed := canonicalize.HashBytes(append(canonical, []byte(e.Signature)...)); recomputed != e.ThisHash {
				report.Details = append(report.Details, Finding{
					File: base, Line: line, Seq: e.Seq, Reason: ReasonHashMismatch,
					Error: fmt.Sprintf("stored this_hash %s, recomputed %s", e.ThisHash, recomputed),
				})
			}

			switch {
			case first && e.PrevHash != contracts.GenesisHash:
				report.Details = append(report.Details, Finding{
					File: base, Line: line, Seq: e.Seq, Reason: ReasonChainBreak,
					Error: "first entry does not chain from the genesis hash",
				})
			case !first && prevKnown && e.PrevHash != prevHash:
				report.Details = append(report.Details, Finding{
					File: base, Line: line, Seq: e.Seq, Reason: ReasonChainBreak,
					Error: fmt.Sprintf("prev_hash %s does not match prior this_hash %s", e.PrevHash, prevHash),
				})
			}

			if e.Action == contracts.ActionRollover && i+1 < len(segments) {
				// A rollover names the active file it handed off to. That file
				// may itself have been sealed since, so its timestamped name is
				// also acceptable.
				want := filepath.Base(segments[i+1])
				got, _ := e.Meta["next"].(string)
				if got != want && !strings.HasPrefix(want, got+".") {
					report.Details = append(report.Details, Finding{
						File: base, Line: line, Seq: e.Seq, Reason: ReasonChainBreak,
						Error: fmt.Sprintf("rollover names %q, next segment is %q", got, want),
					})
				}
			}

			prevHash = e.ThisHash
			prevKnown = true
			first = false
		}
		scanErr := scanner.Err()
		f.Close()
		if scanErr != nil {
			return nil, fmt.Errorf("scan segment %s: %w", base, scanErr)
		}
	}

	report.Verified = len(report.Details) == 0
	return report, nil
}

// segmentsOf returns sealed segments in seal order followed by the active
// file. Sealed segment names carry a sortable UTC timestamp suffix.
func segmentsOf(ledgerPath string) ([]string, error) {
	dir := filepath.Dir(ledgerPath)
	base := filepath.Base(ledgerPath)

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger dir: %w", err)
	}

	var sealed []string
	active := false
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if name == base {
			active = true
			continue
		}
		if strings.HasPrefix(name, base+".") && !strings.HasSuffix(name, ".lock") {
			sealed = append(sealed, filepath.Join(dir, name))
		}
	}
	sort.Strings(sealed)
	if active {
		sealed = append(sealed, ledgerPath)
	}
	return sealed, nil
}

// loadPublicMaterial reads the hex-encoded public key published next to the
// ledger.
func loadPublicMaterial(dir string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "public.key"))
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	material, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("public key decode: %w", err)
	}
	return material, nil
}
