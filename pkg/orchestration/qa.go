package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/axprotocol/core/pkg/contracts"
	"github.com/axprotocol/core/pkg/llm"
)

// Micro Q&A bounds: one question, one answer, both truncated hard. Single
// turn, no loops.
const qaMaxChars = 800

// microQA runs one bounded clarification exchange between adjacent roles.
// Failures are non-fatal: the downstream role just proceeds without a note.
func (c *Chain) microQA(ctx context.Context, asker, responder contracts.RoleName, contextText string) (contracts.QANote, bool) {
	question, err := c.client.Complete(ctx, llm.Request{
		System: fmt.Sprintf("Micro-QA (%s asking %s)", asker, responder),
		User: contextText + fmt.Sprintf(
			"\nAsk ONE clarifying question for the %s. If none needed, reply with NONE.", responder),
		Temperature: 0.35,
	})
	if err != nil {
		c.logger.Warn("micro qa question failed", "asker", asker, "error", err)
		return contracts.QANote{}, false
	}
	question = truncate(strings.TrimSpace(question), qaMaxChars)
	if strings.HasPrefix(strings.ToUpper(question), "NONE") {
		return contracts.QANote{}, false
	}

	answer, err := c.client.Complete(ctx, llm.Request{
		System: fmt.Sprintf("Micro-QA (%s answering %s)", responder, asker),
		User: contextText + fmt.Sprintf(
			"\nQuestion: %s\nProvide a short, direct answer.", question),
		Temperature: 0.2,
	})
	if err != nil {
		c.logger.Warn("micro qa answer failed", "responder", responder, "error", err)
		return contracts.QANote{}, false
	}
	return contracts.QANote{
		From:     asker,
		To:       responder,
		Question: question,
		Answer:   truncate(strings.TrimSpace(answer), qaMaxChars),
	}, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
