// Package engine drives conversations: it owns the sessions, runs the
// assistant/tool loop against a provider and the tool dispatcher, and
// publishes every state change on an event bus.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentedit/config"
	"agentedit/events"
	"agentedit/model"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionBusy      = errors.New("session is busy")
	ErrProviderNotFound = errors.New("provider not found")
)

// ToolDispatcher executes tool calls requested by the model.
type ToolDispatcher interface {
	Definitions() []mcptypes.Tool
	Dispatch(ctx context.Context, call model.ToolCall, messageID string) (any, error)
}

// Persister stores sessions whenever they settle or change.
type Persister interface {
	Save(session *model.ChatSession) error
	Delete(id string) error
}

// Archiver indexes settled sessions for cross-session search.
type Archiver interface {
	Upsert(session *model.ChatSession) error
	Remove(id string) error
}

// Options configures an Engine. Every field is optional.
type Options struct {
	Tools        ToolDispatcher
	Persister    Persister
	Archiver     Archiver
	SystemPrompt string
}

// SessionUpdate changes session settings. Nil fields are left alone.
type SessionUpdate struct {
	SelectedModel *string
	ToolsEnabled  *bool
}

type sessionEntry struct {
	session *model.ChatSession
	state   State
	busy    bool
	deleted bool
	cancel  context.CancelFunc
}

// Engine owns the session store. It is safe for concurrent use; within one
// session only a single SendMessage may be in flight.
type Engine struct {
	mu        sync.Mutex
	sessions  map[string]*sessionEntry
	providers map[string]model.Provider
	opts      Options
	bus       *events.Bus[Event]
}

// New creates an engine over the given providers, keyed by provider ID.
func New(providers map[string]model.Provider, opts Options) *Engine {
	p := make(map[string]model.Provider, len(providers))
	for id, provider := range providers {
		p[id] = provider
	}
	return &Engine{
		sessions:  make(map[string]*sessionEntry),
		providers: p,
		opts:      opts,
		bus:       events.NewBus[Event](),
	}
}

// Subscribe registers a listener for engine events.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	return e.bus.Subscribe(fn)
}

// SetProvider registers or replaces a provider. A nil provider removes it.
func (e *Engine) SetProvider(id string, p model.Provider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p == nil {
		delete(e.providers, id)
		return
	}
	e.providers[id] = p
}

// Providers returns the registered provider IDs, sorted.
func (e *Engine) Providers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.providers))
	for id := range e.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CreateSession starts an empty session.
func (e *Engine) CreateSession(selectedModel string, toolsEnabled bool) *model.ChatSession {
	session := model.NewSession(selectedModel, toolsEnabled)

	e.mu.Lock()
	e.sessions[session.ID] = &sessionEntry{session: session, state: StateIdle}
	snapshot := session.Clone()
	e.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Engine] Created session %s (model=%s tools=%v)", session.ID, selectedModel, toolsEnabled)
	}
	e.persist(snapshot)
	e.publish(Event{Type: EventSessionUpdated, SessionID: snapshot.ID, Session: snapshot})
	return snapshot.Clone()
}

// Restore registers a previously stored session, replacing any idle session
// with the same ID.
func (e *Engine) Restore(session *model.ChatSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("cannot restore session without an ID")
	}

	e.mu.Lock()
	if existing, ok := e.sessions[session.ID]; ok && existing.busy {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionBusy, session.ID)
	}
	restored := session.Clone()
	if restored.Messages == nil {
		restored.Messages = []model.ChatMessage{}
	}
	e.sessions[session.ID] = &sessionEntry{session: restored, state: StateIdle}
	snapshot := restored.Clone()
	e.mu.Unlock()

	e.publish(Event{Type: EventSessionUpdated, SessionID: snapshot.ID, Session: snapshot})
	return nil
}

// Session returns a copy of the session.
func (e *Engine) Session(id string) (*model.ChatSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return entry.session.Clone(), nil
}

// Sessions returns copies of all sessions, most recently updated first.
func (e *Engine) Sessions() []*model.ChatSession {
	e.mu.Lock()
	out := make([]*model.ChatSession, 0, len(e.sessions))
	for _, entry := range e.sessions {
		out = append(out, entry.session.Clone())
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// State returns the session's loop state.
func (e *Engine) State(id string) (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.sessions[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return entry.state, nil
}

// UpdateSession changes the selected model or tool setting. It is allowed
// while a turn is running; the next provider call picks up the change.
func (e *Engine) UpdateSession(id string, update SessionUpdate) (*model.ChatSession, error) {
	e.mu.Lock()
	entry, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if update.SelectedModel != nil {
		entry.session.SelectedModel = *update.SelectedModel
	}
	if update.ToolsEnabled != nil {
		entry.session.ToolsEnabled = *update.ToolsEnabled
	}
	entry.session.UpdatedAt = now()
	snapshot := entry.session.Clone()
	e.mu.Unlock()

	e.persist(snapshot)
	e.publish(Event{Type: EventSessionUpdated, SessionID: id, Session: snapshot})
	return snapshot.Clone(), nil
}

// ClearSession removes every message but keeps the session's identity and
// settings. A busy session cannot be cleared.
func (e *Engine) ClearSession(id string) error {
	e.mu.Lock()
	entry, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if entry.busy {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionBusy, id)
	}
	entry.session.Messages = []model.ChatMessage{}
	entry.session.UpdatedAt = now()
	snapshot := entry.session.Clone()
	e.mu.Unlock()

	e.persist(snapshot)
	e.publish(Event{Type: EventSessionUpdated, SessionID: id, Session: snapshot})
	return nil
}

// DeleteSession removes a session. An in-flight turn is cancelled and its
// results are discarded.
func (e *Engine) DeleteSession(id string) error {
	e.mu.Lock()
	entry, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(e.sessions, id)
	entry.deleted = true
	cancel := entry.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if e.opts.Persister != nil {
		if err := e.opts.Persister.Delete(id); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Engine] Failed to delete stored session %s: %v", id, err)
		}
	}
	if e.opts.Archiver != nil {
		if err := e.opts.Archiver.Remove(id); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Engine] Failed to remove archived session %s: %v", id, err)
		}
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Engine] Deleted session %s", id)
	}
	e.publish(Event{Type: EventSessionUpdated, SessionID: id})
	return nil
}

// Cancel aborts the session's in-flight turn, if any.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	entry, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cancel := entry.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

func (e *Engine) publish(ev Event) {
	e.bus.Publish(ev)
}

func (e *Engine) persist(session *model.ChatSession) {
	if e.opts.Persister == nil {
		return
	}
	if err := e.opts.Persister.Save(session); err != nil {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Engine] Failed to persist session %s: %v", session.ID, err)
		}
		e.publish(Event{Type: EventError, SessionID: session.ID, Err: fmt.Errorf("failed to save session: %w", err)})
	}
}

func (e *Engine) archive(session *model.ChatSession) {
	if e.opts.Archiver == nil {
		return
	}
	if err := e.opts.Archiver.Upsert(session); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[Engine] Failed to archive session %s: %v", session.ID, err)
	}
}
