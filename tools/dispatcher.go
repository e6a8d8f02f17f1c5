// Package tools owns the fixed vocabulary of tools the agent may invoke and
// validates every invocation before it touches the document or workspace.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"agentedit/config"
	"agentedit/document"
	"agentedit/model"
	"agentedit/workspace"
)

var (
	ErrUnknownTool         = errors.New("unknown tool")
	ErrMissingArgument     = errors.New("missing argument")
	ErrInvalidArgumentType = errors.New("invalid argument type")
	ErrNoWorkspace         = errors.New("no workspace open")
)

// Handler executes a validated invocation.
type Handler func(ctx context.Context, inv Invocation) (any, error)

// Invocation is a validated tool call.
type Invocation struct {
	Args      map[string]any
	MessageID string
}

// String returns the named string argument. Validation guarantees required
// string arguments are present.
func (inv Invocation) String(name string) string {
	s, _ := inv.Args[name].(string)
	return s
}

type tool struct {
	def     mcptypes.Tool
	handler Handler
}

// Dispatcher validates and executes tool calls against the active document
// and the workspace.
type Dispatcher struct {
	doc   *document.Manager
	fs    workspace.FileSystem
	root  workspace.Ref
	cache *workspace.ContentCache

	tools map[string]tool
	order []string
}

// NewDispatcher creates a dispatcher with the canonical tool set. fs may be
// nil when no workspace is open; cache may be nil.
func NewDispatcher(doc *document.Manager, fs workspace.FileSystem, root workspace.Ref, cache *workspace.ContentCache) *Dispatcher {
	d := &Dispatcher{
		doc:   doc,
		fs:    fs,
		root:  root,
		cache: cache,
		tools: make(map[string]tool),
	}
	d.registerBuiltins()
	return d
}

func (d *Dispatcher) register(def mcptypes.Tool, handler Handler) {
	if _, exists := d.tools[def.Name]; !exists {
		d.order = append(d.order, def.Name)
	}
	d.tools[def.Name] = tool{def: def, handler: handler}
}

// Definitions returns the tool schemas in registration order.
func (d *Dispatcher) Definitions() []mcptypes.Tool {
	defs := make([]mcptypes.Tool, 0, len(d.order))
	for _, name := range d.order {
		defs = append(defs, d.tools[name].def)
	}
	return defs
}

// Dispatch validates call against its tool's schema and executes it.
// messageID identifies the assistant message that requested the call and
// tags any snapshot the call produces.
func (d *Dispatcher) Dispatch(ctx context.Context, call model.ToolCall, messageID string) (any, error) {
	t, ok := d.tools[call.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	if err := validate(t.def, call.Arguments); err != nil {
		return nil, err
	}

	start := time.Now()
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Tools] Executing %s (call %s)", call.Name, call.ID)
	}

	args := call.Arguments
	if args == nil {
		args = map[string]any{}
	}
	result, err := t.handler(ctx, Invocation{Args: args, MessageID: messageID})

	if config.DebugLog != nil {
		if err != nil {
			config.DebugLog.Printf("[Tools] %s failed after %v: %v", call.Name, time.Since(start), err)
		} else {
			config.DebugLog.Printf("[Tools] %s completed in %v", call.Name, time.Since(start))
		}
	}
	return result, err
}

// validate checks required parameters first, then the primitive type of
// every declared parameter that was supplied.
func validate(def mcptypes.Tool, args map[string]any) error {
	for _, name := range def.InputSchema.Required {
		if v, ok := args[name]; !ok || v == nil {
			return fmt.Errorf("%w: %s", ErrMissingArgument, name)
		}
	}
	for name, v := range args {
		prop, ok := def.InputSchema.Properties[name].(map[string]any)
		if !ok || v == nil {
			continue
		}
		want, _ := prop["type"].(string)
		if !matchesType(want, v) {
			return fmt.Errorf("%w: %s must be %s, got %T", ErrInvalidArgumentType, name, want, v)
		}
	}
	return nil
}

func matchesType(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}
