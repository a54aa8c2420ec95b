// Package registry holds the session-scoped artifact blackboard. Each role
// appends typed artifacts; downstream roles read curated slices of it.
// The orchestrator owns a registry per session, so no locking is needed.
package registry

import (
	"fmt"

	"github.com/axprotocol/core/pkg/contracts"
)

// Registry accumulates validated artifacts for one session.
type Registry struct {
	strategies  []contracts.Strategy
	analyses    []contracts.Analysis
	productions []contracts.Production
	courierRows []contracts.CourierRow
	critiques   []contracts.Critique
	qaNotes     []contracts.QANote

	ids map[string]contracts.ArtifactKind
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{ids: make(map[string]contracts.ArtifactKind)}
}

func (r *Registry) claim(id string, kind contracts.ArtifactKind) error {
	if id == "" {
		return fmt.Errorf("registry: empty artifact id")
	}
	if prior, ok := r.ids[id]; ok {
		return fmt.Errorf("registry: duplicate artifact id %s (already registered as %s)", id, prior)
	}
	r.ids[id] = kind
	return nil
}

// AddStrategies registers Strategist output.
func (r *Registry) AddStrategies(items []contracts.Strategy) error {
	for _, s := range items {
		if err := r.claim(s.SID, contracts.KindStrategy); err != nil {
			return err
		}
	}
	r.strategies = append(r.strategies, items...)
	return nil
}

// AddAnalyses registers Analyst output.
func (r *Registry) AddAnalyses(items []contracts.Analysis) error {
	for _, a := range items {
		if err := r.claim(a.AID, contracts.KindAnalysis); err != nil {
			return err
		}
	}
	r.analyses = append(r.analyses, items...)
	return nil
}

// AddProductions registers Producer output.
func (r *Registry) AddProductions(items []contracts.Production) error {
	for _, p := range items {
		if err := r.claim(p.PID, contracts.KindProduction); err != nil {
			return err
		}
	}
	r.productions = append(r.productions, items...)
	return nil
}

// AddCourierRows registers Courier output. Rows have no artifact id of their
// own; they reference production ids.
func (r *Registry) AddCourierRows(items []contracts.CourierRow) {
	r.courierRows = append(r.courierRows, items...)
}

// AddCritiques registers Critic output.
func (r *Registry) AddCritiques(items []contracts.Critique) error {
	for _, x := range items {
		if err := r.claim(x.XID, contracts.KindCritique); err != nil {
			return err
		}
	}
	r.critiques = append(r.critiques, items...)
	return nil
}

// AddQANote records one micro Q&A exchange.
func (r *Registry) AddQANote(n contracts.QANote) {
	r.qaNotes = append(r.qaNotes, n)
}

// Has reports whether an artifact id is registered with the given kind.
func (r *Registry) Has(id string, kind contracts.ArtifactKind) bool {
	k, ok := r.ids[id]
	return ok && k == kind
}

// IDsOfKind returns all registered ids of one kind, in insertion order.
func (r *Registry) IDsOfKind(kind contracts.ArtifactKind) []string {
	var out []string
	switch kind {
	case contracts.KindStrategy:
		for _, s := range r.strategies {
			out = append(out, s.SID)
		}
	case contracts.KindAnalysis:
		for _, a := range r.analyses {
			out = append(out, a.AID)
		}
	case contracts.KindProduction:
		for _, p := range r.productions {
			out = append(out, p.PID)
		}
	case contracts.KindCritique:
		for _, x := range r.critiques {
			out = append(out, x.XID)
		}
	}
	return out
}

// Strategies returns a copy of registered strategies.
func (r *Registry) Strategies() []contracts.Strategy {
	return append([]contracts.Strategy(nil), r.strategies...)
}

// Analyses returns a copy of registered analyses.
func (r *Registry) Analyses() []contracts.Analysis {
	return append([]contracts.Analysis(nil), r.analyses...)
}

// Productions returns a copy of registered productions.
func (r *Registry) Productions() []contracts.Production {
	return append([]contracts.Production(nil), r.productions...)
}

// CourierRows returns a copy of registered courier rows.
func (r *Registry) CourierRows() []contracts.CourierRow {
	return append([]contracts.CourierRow(nil), r.courierRows...)
}

// Critiques returns a copy of registered critiques.
func (r *Registry) Critiques() []contracts.Critique {
	return append([]contracts.Critique(nil), r.critiques...)
}

// Snapshot freezes the registry for results and session logs.
func (r *Registry) Snapshot() contracts.RegistrySnapshot {
	return contracts.RegistrySnapshot{
		S: r.Strategies(),
		A: r.Analyses(),
		P: r.Productions(),
		C: r.CourierRows(),
		X: r.Critiques(),
		Q: append([]contracts.QANote(nil), r.qaNotes...),
	}
}
