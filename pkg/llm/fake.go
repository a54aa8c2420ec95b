package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient replays canned completions in order. Tests drive the whole
// chain through it without a network.
type ScriptedClient struct {
	mu       sync.Mutex
	script   []string
	errs     map[int]error
	calls    []Request
	position int
}

// NewScriptedClient returns a client that yields the given completions in
// sequence.
func NewScriptedClient(completions ...string) *ScriptedClient {
	return &ScriptedClient{script: completions, errs: make(map[int]error)}
}

// FailAt makes the nth call (0-based) return err instead of a completion.
func (s *ScriptedClient) FailAt(n int, err error) *ScriptedClient {
	s.errs[n] = err
	return s
}

func (s *ScriptedClient) Complete(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	i := s.position
	s.position++
	if err, ok := s.errs[i]; ok {
		return "", err
	}
	if i >= len(s.script) {
		return "", fmt.Errorf("scripted client exhausted after %d completions", len(s.script))
	}
	return s.script[i], nil
}

// Calls returns the requests seen so far.
func (s *ScriptedClient) Calls() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.calls...)
}
