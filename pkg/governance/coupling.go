// Package governance couples detector output to enforcement. The coupling
// config declares each directive as hard (clamps scores) or soft (audit tag
// only); the kernel itself has no hardcoded policy.
package governance

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Directive ids the built-in detectors map to.
const (
	DirContradiction  = "D3"
	DirAmbiguity      = "D2"
	DirPrecedenceA    = "D7"
	DirPrecedenceB    = "D11"
	DirSycophancy     = "D13"
	DirOverconfidence = "D20-24"
	DirSecrets        = "SECRETS"
	DirFabrication    = "FABRICATION"
	DirMisrouting     = "DOMAIN_MISROUTING"
	DirRedundancy     = "REDUNDANCY"

	// TagUnavailable marks sessions that ran with no enforceable coupling.
	TagUnavailable = "COUPLING_UNAVAILABLE"
)

// DirectiveSpec is one normalized directive policy.
type DirectiveSpec struct {
	Mode   string   `json:"mode"`
	IVMax  *float64 `json:"iv_max,omitempty"`
	IRDMin *float64 `json:"ird_min,omitempty"`
	// When is an optional CEL predicate gating the directive. Variables:
	// iv, ird (double), role, domain (string), signals (list of string).
	When string `json:"when,omitempty"`
}

// Coupling is the loaded, normalized governance configuration.
type Coupling struct {
	Signals       map[string]DirectiveSpec
	WriteToLedger bool
	MinProtocol   string

	// Available is false when no usable config could be loaded. The chain
	// then fails closed: every detection becomes a soft tag, nothing clamps,
	// and the session is tagged COUPLING_UNAVAILABLE.
	Available bool

	cel *predicateCache
}

type couplingFile struct {
	WriteGovernanceToLedger bool                      `json:"write_governance_to_ledger"`
	MinProtocol             string                    `json:"min_protocol"`
	Signals                 map[string]json.RawMessage `json:"signals"`
}

// Load reads and normalizes the coupling config. A missing or unparseable
// file yields an unavailable coupling, never an error: governance degrades
// to soft-only rather than blocking sessions.
func Load(path string, logger *slog.Logger) *Coupling {
	unavailable := &Coupling{Available: false, cel: newPredicateCache()}

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("governance coupling unavailable", "path", path, "error", err)
		return unavailable
	}
	var file couplingFile
	if err := json.Unmarshal(raw, &file); err != nil {
		logger.Warn("governance coupling unparseable", "path", path, "error", err)
		return unavailable
	}

	c := &Coupling{
		Signals:       make(map[string]DirectiveSpec, len(file.Signals)),
		WriteToLedger: file.WriteGovernanceToLedger,
		MinProtocol:   file.MinProtocol,
		Available:     true,
		cel:           newPredicateCache(),
	}
	for id, rawSpec := range file.Signals {
		var spec DirectiveSpec
		if err := json.Unmarshal(rawSpec, &spec); err != nil {
			logger.Warn("invalid governance spec, skipping", "directive", id, "error", err)
			continue
		}
		if spec.Mode != "hard" && spec.Mode != "soft" {
			if spec.Mode != "" {
				logger.Warn("invalid governance mode, defaulting to hard", "directive", id, "mode", spec.Mode)
			}
			spec.Mode = "hard"
		}
		if spec.IVMax != nil && !inUnitRange(*spec.IVMax) {
			logger.Warn("invalid iv_max, ignoring cap", "directive", id, "iv_max", *spec.IVMax)
			spec.IVMax = nil
		}
		if spec.IRDMin != nil && !inUnitRange(*spec.IRDMin) {
			logger.Warn("invalid ird_min, ignoring floor", "directive", id, "ird_min", *spec.IRDMin)
			spec.IRDMin = nil
		}
		c.Signals[id] = spec
	}
	return c
}

func inUnitRange(f float64) bool { return f >= 0 && f <= 1 }

// Has reports whether a directive id is configured.
func (c *Coupling) Has(id string) bool {
	_, ok := c.Signals[id]
	return ok
}

func (c *Coupling) String() string {
	if !c.Available {
		return "coupling(unavailable)"
	}
	return fmt.Sprintf("coupling(%d directives)", len(c.Signals))
}
