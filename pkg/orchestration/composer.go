package orchestration

import (
	"fmt"
	"strings"

	"github.com/axprotocol/core/pkg/contracts"
)

// composeReport renders the execution summary the operator reads: one
// section per populated registry slice plus any clarifications.
func composeReport(objective string, reg contracts.RegistrySnapshot) string {
	var b strings.Builder
	b.WriteString("# Execution Summary\n")
	fmt.Fprintf(&b, "Objective: %s\n", objective)

	if len(reg.S) > 0 {
		b.WriteString("\n## Strategy (S)\n")
		for _, s := range reg.S {
			fmt.Fprintf(&b, "- %s: %s\n", s.SID, s.Title)
		}
	}
	if len(reg.A) > 0 {
		b.WriteString("\n## Analysis (A)\n")
		for _, a := range reg.A {
			fmt.Fprintf(&b, "- %s -> refs %s\n", a.AID, strings.Join(a.SRefs, ", "))
		}
	}
	if len(reg.P) > 0 {
		b.WriteString("\n## Production Assets (P)\n")
		for _, p := range reg.P {
			fmt.Fprintf(&b, "- %s [%s], refs %s\n", p.PID, p.SpecType, strings.Join(p.ARefs, ", "))
		}
	}
	if len(reg.C) > 0 {
		b.WriteString("\n## Courier Schedule (C)\n")
		for _, row := range reg.C {
			fmt.Fprintf(&b, "- %s %s via %s -> %s (target %s)\n", row.Day, row.Time, row.Channel, row.PID, row.KPITarget)
		}
	}
	if len(reg.X) > 0 {
		b.WriteString("\n## Critic Findings (X)\n")
		for _, x := range reg.X {
			fmt.Fprintf(&b, "- %s severity=%s: %s\n", x.XID, x.Severity, x.Issue)
		}
	}
	if len(reg.Q) > 0 {
		b.WriteString("\n## Clarifications\n")
		for _, q := range reg.Q {
			fmt.Fprintf(&b, "- %s->%s: Q: %s | A: %s\n", q.From, q.To, q.Question, q.Answer)
		}
	}
	return b.String()
}
