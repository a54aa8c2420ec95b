// Package validation enforces the artifact contracts: JSON Schema for shape,
// then reference-integrity against the session registry. Schema rejects
// malformed structure; the integrity pass names the exact offending ids so
// the strict re-prompt can quote them back at the model.
package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/axprotocol/core/pkg/contracts"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Result is the outcome of one validation pass. Reason is a stable machine
// token; Message carries the human detail, including verbatim offending ids.
type Result struct {
	OK      bool
	Reason  string
	Message string
}

func ok() Result { return Result{OK: true, Reason: "ok", Message: "ok"} }

func fail(reason, format string, args ...any) Result {
	return Result{OK: false, Reason: reason, Message: fmt.Sprintf(format, args...)}
}

var compiled = map[string]*jsonschema.Schema{}

func init() {
	c := jsonschema.NewCompiler()
	names := []string{"strategy", "analysis", "production", "courier", "critique", "caller"}
	for _, name := range names {
		raw, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			panic(fmt.Sprintf("validation: missing embedded schema %s: %v", name, err))
		}
		url := "axp://schemas/" + name + ".json"
		if err := c.AddResource(url, bytes.NewReader(raw)); err != nil {
			panic(fmt.Sprintf("validation: add schema %s: %v", name, err))
		}
	}
	for _, name := range names {
		s, err := c.Compile("axp://schemas/" + name + ".json")
		if err != nil {
			panic(fmt.Sprintf("validation: compile schema %s: %v", name, err))
		}
		compiled[name] = s
	}
}

func checkSchema(name string, raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return compiled[name].Validate(v)
}

// Strategies validates Strategist output.
func Strategies(raw []byte) ([]contracts.Strategy, Result) {
	if err := checkSchema("strategy", raw); err != nil {
		return nil, fail("schema", "S failed schema: %v", err)
	}
	var items []contracts.Strategy
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fail("decode", "S decode: %v", err)
	}
	return items, ok()
}

// Analyses validates Analyst output against known strategy ids.
func Analyses(raw []byte, sIDs []string) ([]contracts.Analysis, Result) {
	if err := checkSchema("analysis", raw); err != nil {
		return nil, fail("schema", "A failed schema: %v", err)
	}
	var items []contracts.Analysis
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fail("decode", "A decode: %v", err)
	}
	known := toSet(sIDs)
	for _, a := range items {
		if unknown := missingFrom(a.SRefs, known); len(unknown) > 0 {
			return nil, fail("refs", "A item %s has unknown S refs: %s", a.AID, joinSorted(unknown))
		}
	}
	return items, ok()
}

// Productions validates Producer output against known analysis ids.
func Productions(raw []byte, aIDs []string) ([]contracts.Production, Result) {
	if err := checkSchema("production", raw); err != nil {
		return nil, fail("schema", "P failed schema: %v", err)
	}
	var items []contracts.Production
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fail("decode", "P decode: %v", err)
	}
	known := toSet(aIDs)
	for _, p := range items {
		if unknown := missingFrom(p.ARefs, known); len(unknown) > 0 {
			return nil, fail("refs", "P item %s has unknown A refs: %s", p.PID, joinSorted(unknown))
		}
	}
	return items, ok()
}

// CourierRows validates Courier output. Every row must reference a declared
// producer asset; undeclared ids are listed verbatim so the re-prompt can
// quote them.
func CourierRows(raw []byte, producerIDs []string) ([]contracts.CourierRow, Result) {
	if err := checkSchema("courier", raw); err != nil {
		return nil, fail("schema", "C failed schema: %v", err)
	}
	var rows []contracts.CourierRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fail("decode", "C decode: %v", err)
	}
	declared := toSet(producerIDs)
	var used []string
	for _, row := range rows {
		used = append(used, row.PID)
	}
	if undeclared := missingFrom(used, declared); len(undeclared) > 0 {
		return nil, fail("undeclared_assets", "Courier used undeclared assets: {%s}", joinSorted(undeclared))
	}
	return rows, ok()
}

// Critiques validates Critic output. Refs must resolve against the full
// registry, collectively span at least three artifact kinds, and each
// finding carries exactly five numeric proof dimensions (schema-enforced).
func Critiques(raw []byte, sIDs, aIDs, pIDs, cIDs []string) ([]contracts.Critique, Result) {
	if err := checkSchema("critique", raw); err != nil {
		return nil, fail("schema", "X failed schema: %v", err)
	}
	var items []contracts.Critique
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fail("decode", "X decode: %v", err)
	}

	known := map[string]map[string]struct{}{
		"S": toSet(sIDs), "A": toSet(aIDs), "P": toSet(pIDs), "C": toSet(cIDs),
	}
	spanned := map[string]struct{}{}
	for _, x := range items {
		buckets := map[string][]string{"S": x.Refs.S, "A": x.Refs.A, "P": x.Refs.P, "C": x.Refs.C}
		for kind, refs := range buckets {
			if len(refs) > 0 {
				spanned[kind] = struct{}{}
			}
			if unknown := missingFrom(refs, known[kind]); len(unknown) > 0 {
				return nil, fail("refs", "X item %s refs unknown %s ids: %s", x.XID, kind, joinSorted(unknown))
			}
		}
	}
	if len(spanned) < 3 {
		return nil, fail("span", "X refs span %d artifact kinds, need at least 3", len(spanned))
	}
	return items, ok()
}

// Caller validates the triage role output.
func Caller(raw []byte) (*contracts.CallerOutcome, Result) {
	if err := checkSchema("caller", raw); err != nil {
		return nil, fail("schema", "Caller failed schema: %v", err)
	}
	var out contracts.CallerOutcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fail("decode", "Caller decode: %v", err)
	}
	return &out, ok()
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func missingFrom(refs []string, known map[string]struct{}) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range refs {
		if _, ok := known[r]; ok {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func joinSorted(ids []string) string {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}
