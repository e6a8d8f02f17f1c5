package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agentedit/config"
	"agentedit/model"
)

var now = time.Now

var errNoTools = errors.New("tool execution is not available")

// turn is one SendMessage call: the user message plus every assistant and
// tool round it triggers.
type turn struct {
	e           *Engine
	entry       *sessionEntry
	sessionID   string
	provider    model.Provider
	model       string
	contextText string
}

// SendMessage appends a user message and runs the conversation loop until
// the assistant answers without tool calls. It returns that final reply.
//
// If a provider call fails or ctx is cancelled, the partial assistant
// message is discarded, the session returns to idle and the error is both
// returned and published. A failing tool call does not end the loop; its
// error is handed back to the model as the call's result.
func (e *Engine) SendMessage(ctx context.Context, sessionID, text, providerID, modelName, contextText string) (model.ChatMessage, error) {
	e.mu.Lock()
	entry, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return model.ChatMessage{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if entry.busy {
		e.mu.Unlock()
		return model.ChatMessage{}, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	provider, ok := e.providers[providerID]
	if !ok || provider == nil {
		e.mu.Unlock()
		return model.ChatMessage{}, fmt.Errorf("%w: %s", ErrProviderNotFound, providerID)
	}
	if modelName == "" {
		modelName = entry.session.SelectedModel
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	entry.busy = true
	entry.cancel = cancel

	user := model.NewMessage(model.RoleUser, text)
	entry.session.Messages = append(entry.session.Messages, user)
	entry.session.UpdatedAt = user.Timestamp
	e.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Engine] Session %s: send via %s/%s (%d chars, context=%d chars)",
			sessionID, providerID, modelName, len(text), len(contextText))
	}
	e.publish(Event{Type: EventMessageAdded, SessionID: sessionID, Message: ptr(user.Clone())})

	t := &turn{
		e:           e,
		entry:       entry,
		sessionID:   sessionID,
		provider:    provider,
		model:       modelName,
		contextText: contextText,
	}
	return t.run(turnCtx)
}

// run is the state machine. Each pass through AwaitingAssistant makes one
// provider call; each pass through ExecutingTools settles every call of the
// latest assistant message.
func (t *turn) run(ctx context.Context) (model.ChatMessage, error) {
	state := StateAwaitingAssistant
	var pending model.ChatMessage
	rounds := 0

	for {
		t.transition(state)

		switch state {
		case StateAwaitingAssistant:
			mark := t.historyLen()
			reply, err := t.requestAssistant(ctx)
			if err != nil {
				return model.ChatMessage{}, t.rollback(mark, err)
			}
			t.appendMessage(reply)
			if !reply.HasToolCalls() {
				t.settle()
				return reply.Clone(), nil
			}
			pending = reply
			state = StateExecutingTools

		case StateExecutingTools:
			rounds++
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Engine] Session %s: tool round %d (%d calls)", t.sessionID, rounds, len(pending.ToolCalls))
			}
			if err := t.executeTools(ctx, &pending); err != nil {
				return model.ChatMessage{}, t.abort(err)
			}
			state = StateAwaitingAssistant
		}
	}
}

// requestAssistant streams one assistant reply over the whole history.
func (t *turn) requestAssistant(ctx context.Context) (model.ChatMessage, error) {
	t.e.mu.Lock()
	history := t.entry.session.Messages
	toolsEnabled := t.entry.session.ToolsEnabled
	req := model.ChatRequest{Model: t.model}
	if toolsEnabled && t.e.opts.Tools != nil {
		req.Tools = t.e.opts.Tools.Definitions()
	}
	req.Messages = buildRequestMessages(history, req.Tools, t.e.opts.SystemPrompt, t.contextText)
	t.e.mu.Unlock()

	stream, err := t.provider.Stream(ctx, req)
	if err != nil {
		return model.ChatMessage{}, err
	}
	defer stream.Close()

	for stream.Next() {
		t.e.publish(Event{Type: EventStreamingChunk, SessionID: t.sessionID, Chunk: stream.Current()})
	}
	if err := stream.Err(); err != nil {
		return model.ChatMessage{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.ChatMessage{}, err
	}

	reply := stream.Message().Clone()
	reply.Role = model.RoleAssistant
	if reply.ID == "" {
		reply.ID = uuid.New().String()
	}
	if reply.Timestamp.IsZero() {
		reply.Timestamp = now()
	}
	return reply, nil
}

// executeTools dispatches the calls in order and records each result on the
// stored message. Only cancellation stops it early; the remaining calls are
// then settled with the cancellation error.
func (t *turn) executeTools(ctx context.Context, msg *model.ChatMessage) error {
	for i := range msg.ToolCalls {
		call := &msg.ToolCalls[i]

		if err := ctx.Err(); err != nil {
			for j := i; j < len(msg.ToolCalls); j++ {
				msg.ToolCalls[j].Result = model.Failure(err)
			}
			t.updateMessage(*msg)
			return err
		}

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Engine] Session %s: executing %s (%s)", t.sessionID, call.Name, call.ID)
		}

		var (
			value any
			err   error
		)
		if t.e.opts.Tools == nil {
			err = errNoTools
		} else {
			value, err = t.e.opts.Tools.Dispatch(ctx, *call, msg.ID)
		}
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Engine] Session %s: tool %s failed: %v", t.sessionID, call.Name, err)
			}
			call.Result = model.Failure(err)
		} else {
			call.Result = model.Success(value)
		}
		t.updateMessage(*msg)
	}
	return nil
}

func (t *turn) historyLen() int {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	return len(t.entry.session.Messages)
}

func (t *turn) transition(state State) {
	t.e.mu.Lock()
	changed := t.entry.state != state
	t.entry.state = state
	t.e.mu.Unlock()

	if !changed {
		return
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Engine] Session %s: -> %s", t.sessionID, state)
	}
	t.e.publish(Event{Type: EventStateChanged, SessionID: t.sessionID, State: state})
}

func (t *turn) appendMessage(msg model.ChatMessage) {
	t.e.mu.Lock()
	t.entry.session.Messages = append(t.entry.session.Messages, msg.Clone())
	t.entry.session.UpdatedAt = now()
	t.e.mu.Unlock()

	t.e.publish(Event{Type: EventMessageAdded, SessionID: t.sessionID, Message: ptr(msg.Clone())})
}

func (t *turn) updateMessage(msg model.ChatMessage) {
	t.e.mu.Lock()
	messages := t.entry.session.Messages
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].ID == msg.ID {
			messages[i] = msg.Clone()
			break
		}
	}
	t.entry.session.UpdatedAt = now()
	t.e.mu.Unlock()

	t.e.publish(Event{Type: EventMessageUpdated, SessionID: t.sessionID, Message: ptr(msg.Clone())})
}

// finish returns the session to idle and reports whether it still exists.
func (t *turn) finish() (*model.ChatSession, bool) {
	t.e.mu.Lock()
	defer t.e.mu.Unlock()
	t.entry.state = StateIdle
	t.entry.busy = false
	t.entry.cancel = nil
	return t.entry.session.Clone(), !t.entry.deleted
}

func (t *turn) settle() {
	snapshot, live := t.finish()
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Engine] Session %s: settled with %d messages", t.sessionID, len(snapshot.Messages))
	}
	if live {
		t.e.persist(snapshot)
		t.e.archive(snapshot)
	}
	t.e.publish(Event{Type: EventStateChanged, SessionID: t.sessionID, State: StateIdle})
	if live {
		t.e.publish(Event{Type: EventSessionUpdated, SessionID: t.sessionID, Session: snapshot})
	}
}

// rollback drops anything appended since mark and ends the turn with err.
func (t *turn) rollback(mark int, err error) error {
	t.e.mu.Lock()
	if len(t.entry.session.Messages) > mark {
		t.entry.session.Messages = t.entry.session.Messages[:mark]
	}
	t.e.mu.Unlock()

	return t.abort(fmt.Errorf("assistant turn failed: %w", err))
}

// abort ends the turn with err, keeping every settled message.
func (t *turn) abort(err error) error {
	snapshot, live := t.finish()
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Engine] Session %s: turn aborted: %v", t.sessionID, err)
	}
	if live {
		t.e.persist(snapshot)
	}
	t.e.publish(Event{Type: EventError, SessionID: t.sessionID, Err: err})
	t.e.publish(Event{Type: EventStateChanged, SessionID: t.sessionID, State: StateIdle})
	if live {
		t.e.publish(Event{Type: EventSessionUpdated, SessionID: t.sessionID, Session: snapshot})
	}
	return err
}

func ptr[T any](v T) *T {
	return &v
}
