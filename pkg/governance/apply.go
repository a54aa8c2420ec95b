package governance

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/detection"
)

// Input is everything governance sees for one role turn.
type Input struct {
	Objective string
	Text      string
	Role      contracts.RoleName
	Domain    contracts.Domain
	TAES      *contracts.TAESRecord

	// ExtraSignals are directive ids raised outside the built-in detectors,
	// such as REDUNDANCY from the orchestrator's shingle guard.
	ExtraSignals []string
}

// Apply runs the detectors, maps hits to configured directives and enforces
// hard caps/floors on the TAES record in place. Hard directives may only
// lower IV and raise IRD; when several apply, the strictest cap and floor
// win.
func (c *Coupling) Apply(in Input, logger *slog.Logger) contracts.GovernanceOutcome {
	out := contracts.GovernanceOutcome{
		IVBefore:  in.TAES.IV,
		IRDBefore: in.TAES.IRD,
		IVAfter:   in.TAES.IV,
		IRDAfter:  in.TAES.IRD,
	}

	detected := c.detect(in)
	if len(detected) == 0 {
		return out
	}

	if !c.Available {
		// Fail closed: everything degrades to audit tags.
		out.SoftSignals = append(detected, TagUnavailable)
		sort.Strings(out.SoftSignals)
		return out
	}

	var hard []string
	for _, id := range detected {
		spec, ok := c.Signals[id]
		if !ok {
			continue
		}
		if spec.When != "" {
			pass, err := c.cel.eval(spec.When, map[string]any{
				"iv":      in.TAES.IV,
				"ird":     in.TAES.IRD,
				"role":    string(in.Role),
				"domain":  string(in.Domain),
				"signals": detected,
			})
			if err != nil {
				logger.Warn("directive predicate failed, degrading to soft",
					"directive", id, "error", err)
				out.SoftSignals = append(out.SoftSignals, id)
				continue
			}
			if !pass {
				continue
			}
		}
		if spec.Mode == "hard" {
			hard = append(hard, id)
		} else {
			out.SoftSignals = append(out.SoftSignals, id)
		}
	}

	if len(hard) > 0 {
		ivCap := math.Inf(1)
		floor := math.Inf(-1)
		hasCap, hasFloor := false, false
		for _, id := range hard {
			spec := c.Signals[id]
			if spec.IVMax != nil {
				ivCap = math.Min(ivCap, *spec.IVMax)
				hasCap = true
			}
			if spec.IRDMin != nil {
				floor = math.Max(floor, *spec.IRDMin)
				hasFloor = true
			}
		}
		if hasCap && ivCap < in.TAES.IV {
			in.TAES.IV = round3(ivCap)
		}
		if hasFloor && floor > in.TAES.IRD {
			in.TAES.IRD = round3(floor)
		}
		in.TAES.RequiresReconciliation = true
		sort.Strings(hard)
		out.HardActions = hard
	}

	out.IVAfter = in.TAES.IV
	out.IRDAfter = in.TAES.IRD
	sort.Strings(out.SoftSignals)
	return out
}

// detect maps detector hits to configured directive ids. Only directives
// present in the config (or forced via ExtraSignals) surface; an unconfigured
// detector is inert by design when coupling is available, but everything
// surfaces when it is not.
func (c *Coupling) detect(in Input) []string {
	var ids []string
	push := func(id string) {
		if !c.Available || c.Has(id) {
			ids = append(ids, id)
		}
	}

	if sig, _ := detection.Contradiction(in.Text); sig.Detected {
		push(DirContradiction)
	}
	if detection.Sycophancy(in.Text).Detected {
		push(DirSycophancy)
	}
	if in.Objective != "" {
		if unresolvedAmbiguity(in.Objective, in.Text) {
			push(DirAmbiguity)
		}
		if detection.PrecedenceInversion(in.Objective, in.Text).Detected {
			push(DirPrecedenceA)
			push(DirPrecedenceB)
		}
	}
	if detection.Overconfidence(in.Text).Detected {
		push(DirOverconfidence)
	}
	if detection.Secrets(in.Text).Detected {
		push(DirSecrets)
	}
	if detection.Fabrication(in.Text).Detected {
		push(DirFabrication)
	}
	if detection.Misroute(in.Domain, in.Text).Detected {
		push(DirMisrouting)
	}
	for _, id := range in.ExtraSignals {
		push(id)
	}
	return ids
}

var ambiguityCues = []string{
	"compare it to last time", "do what makes sense", "just ship it",
	"as before", "like last time", "etc.", "whatever works", "figure it out",
}

// unresolvedAmbiguity fires when the objective is vague and the output
// neither asks a clarifying question nor states an assumption.
func unresolvedAmbiguity(objective, text string) bool {
	o := detection.Normalize(objective)
	vague := false
	for _, cue := range ambiguityCues {
		if strings.Contains(o, cue) {
			vague = true
			break
		}
	}
	if !vague {
		return false
	}
	t := detection.Normalize(text)
	return !strings.Contains(text, "?") && !strings.Contains(t, "assumption")
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
