// Package testutil provides scripted providers and fixtures for tests that
// drive the conversation engine without a network.
package testutil

import (
	"context"
	"errors"
	"sync"

	"agentedit/model"
)

// ErrScriptExhausted is returned when a ScriptedProvider has no replies left.
var ErrScriptExhausted = errors.New("scripted provider has no replies left")

// Step is one scripted provider turn: either a reply or an error.
type Step struct {
	Reply model.ChatMessage
	Err   error
	// StreamErr fails the stream after its content has been delivered.
	StreamErr error
	// Chunks splits Reply.Content for streaming. Empty means one chunk per
	// rune.
	Chunks []string
}

// ScriptedProvider implements model.Provider by replaying Steps in order and
// recording every request it receives.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []Step
	requests []model.ChatRequest

	// BeforeReply, when set, runs before each reply is handed out. Tests use
	// it to block or observe the engine mid-loop.
	BeforeReply func(ctx context.Context, req model.ChatRequest) error

	Models  []model.ModelInfo
	PingErr error
}

// NewScriptedProvider creates a provider that replays steps.
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{
		steps: steps,
		Models: []model.ModelInfo{
			{Name: "mock-model-1", InternalName: "mock-model-1", Size: 1000, Provider: "mock"},
			{Name: "mock-model-2", InternalName: "mock-model-2", Size: 2000, Provider: "mock"},
		},
	}
}

// Enqueue appends further steps.
func (p *ScriptedProvider) Enqueue(steps ...Step) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, steps...)
}

// Requests returns a copy of every request received so far.
func (p *ScriptedProvider) Requests() []model.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ChatRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// Remaining reports how many steps have not been consumed.
func (p *ScriptedProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

func (p *ScriptedProvider) next(ctx context.Context, req model.ChatRequest) (Step, error) {
	p.mu.Lock()
	req.Messages = cloneMessages(req.Messages)
	p.requests = append(p.requests, req)
	hook := p.BeforeReply
	p.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, req); err != nil {
			return Step{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return Step{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.steps) == 0 {
		return Step{}, ErrScriptExhausted
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	if step.Err != nil {
		return Step{}, step.Err
	}
	return step, nil
}

func (p *ScriptedProvider) Complete(ctx context.Context, req model.ChatRequest) (model.ChatMessage, error) {
	step, err := p.next(ctx, req)
	if err != nil {
		return model.ChatMessage{}, err
	}
	if step.StreamErr != nil {
		return model.ChatMessage{}, step.StreamErr
	}
	return step.Reply.Clone(), nil
}

func (p *ScriptedProvider) Stream(ctx context.Context, req model.ChatRequest) (model.MessageStream, error) {
	step, err := p.next(ctx, req)
	if err != nil {
		return nil, err
	}
	chunks := step.Chunks
	if len(chunks) == 0 {
		for _, r := range step.Reply.Content {
			chunks = append(chunks, string(r))
		}
	}
	return &scriptedStream{ctx: ctx, chunks: chunks, reply: step.Reply.Clone(), failWith: step.StreamErr}, nil
}

func (p *ScriptedProvider) ListModels(ctx context.Context) ([]model.ModelInfo, error) {
	return p.Models, nil
}

func (p *ScriptedProvider) Ping(ctx context.Context) error {
	return p.PingErr
}

type scriptedStream struct {
	ctx      context.Context
	chunks   []string
	pos      int
	current  string
	reply    model.ChatMessage
	failWith error
	err      error
}

func (s *scriptedStream) Next() bool {
	if s.err != nil {
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}
	if s.pos >= len(s.chunks) {
		if s.failWith != nil {
			s.err = s.failWith
		}
		return false
	}
	s.current = s.chunks[s.pos]
	s.pos++
	return true
}

func (s *scriptedStream) Current() string { return s.current }
func (s *scriptedStream) Err() error { return s.err }
func (s *scriptedStream) Message() model.ChatMessage { return s.reply }
func (s *scriptedStream) Close() error { return nil }

func cloneMessages(messages []model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, len(messages))
	for i, m := range messages {
		out[i] = m.Clone()
	}
	return out
}
