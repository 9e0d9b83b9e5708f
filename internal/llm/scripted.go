package llm

import (
	"context"
	"sync"
)

// ScriptedClient replays canned raw replies in order. Once the script is
// exhausted it consults Fallback, if set. It records every request so tests
// can inspect the context the controller built.
type ScriptedClient struct {
	// Fallback produces a reply when the script is exhausted.
	Fallback func(msgs []Message, tools []ToolSpec) string

	mu        sync.Mutex
	responses []string
	requests  [][]Message
	toolSets  [][]ToolSpec
}

func NewScriptedClient(responses ...string) *ScriptedClient {
	return &ScriptedClient{responses: append([]string(nil), responses...)}
}

func (s *ScriptedClient) Name() string { return "scripted" }
func (s *ScriptedClient) Close() error { return nil }

func (s *ScriptedClient) Complete(ctx context.Context, msgs []Message, tools []ToolSpec) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, append([]Message(nil), msgs...))
	s.toolSets = append(s.toolSets, tools)
	var raw string
	switch {
	case len(s.responses) > 0:
		raw = s.responses[0]
		s.responses = s.responses[1:]
	case s.Fallback != nil:
		fb := s.Fallback
		s.mu.Unlock()
		raw = fb(msgs, tools)
		s.mu.Lock()
	default:
		s.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	s.mu.Unlock()
	return &Response{Turn: ParseTurn(raw), Raw: raw}, nil
}

// Requests returns copies of the message lists received so far.
func (s *ScriptedClient) Requests() [][]Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Message, len(s.requests))
	copy(out, s.requests)
	return out
}

// ToolSets returns the tool catalogs offered with each request.
func (s *ScriptedClient) ToolSets() [][]ToolSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]ToolSpec, len(s.toolSets))
	copy(out, s.toolSets)
	return out
}
