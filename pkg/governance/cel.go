package governance

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// predicateCache compiles directive "when" predicates once and reuses the
// programs across sessions.
type predicateCache struct {
	env   *cel.Env
	mu    sync.RWMutex
	progs map[string]cel.Program
}

func newPredicateCache() *predicateCache {
	env, err := cel.NewEnv(
		cel.Variable("iv", cel.DoubleType),
		cel.Variable("ird", cel.DoubleType),
		cel.Variable("role", cel.StringType),
		cel.Variable("domain", cel.StringType),
		cel.Variable("signals", cel.ListType(cel.StringType)),
	)
	if err != nil {
		// The environment is built from constants; failure here is a
		// programming error, not a runtime condition.
		panic(fmt.Sprintf("governance: cel env: %v", err))
	}
	return &predicateCache{env: env, progs: make(map[string]cel.Program)}
}

// eval runs a predicate against the per-role activation. Non-boolean results
// and evaluation errors are reported to the caller, which degrades the
// directive to soft.
func (p *predicateCache) eval(expr string, input map[string]any) (bool, error) {
	p.mu.RLock()
	prg, hit := p.progs[expr]
	p.mu.RUnlock()

	if !hit {
		p.mu.Lock()
		if prg, hit = p.progs[expr]; !hit {
			ast, issues := p.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				p.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			compiled, err := p.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				p.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			p.progs[expr] = compiled
			prg = compiled
		}
		p.mu.Unlock()
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("predicate %q returned %T, want bool", expr, out.Value())
	}
	return b, nil
}
