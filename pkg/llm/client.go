// Package llm abstracts the chat-completion transport used by the chain.
package llm

import "context"

// Request is one chat completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Client produces a completion for a system+user prompt pair.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}
