package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"agentedit/document"
	"agentedit/engine"
	"agentedit/model"
	"agentedit/storage"
)

// Searcher finds messages across archived sessions.
type Searcher interface {
	Search(query string) ([]storage.SessionMessageMatch, error)
}

// Options wires the chat view to the core. Document and Archive may be nil.
type Options struct {
	Engine     *engine.Engine
	Document   *document.Manager
	Archive    Searcher
	ProviderID string
	Model      string

	// Session is resumed when set; otherwise a new one is created on start.
	Session      *model.ChatSession
	ToolsEnabled bool

	// OnSessionChange is called with the ID of every session the view
	// switches to.
	OnSessionChange func(id string)
}

type AppView struct {
	opts Options

	viewport    viewport.Model
	input       textinput.Model
	searchInput textinput.Model
	spinner     spinner.Model

	width  int
	height int
	ready  bool

	session   *model.ChatSession
	state     engine.State
	sending   bool
	streaming *strings.Builder // pointer so copies of AppView share the buffer
	errMsg    string
	docStatus string

	searchMode    bool
	searchResults *searchResultsMsg

	events      chan tea.Msg
	done        chan struct{}
	closeOnce   *sync.Once
	unsubscribe []func()
}

// NewAppView subscribes to engine and document events. Call Close when the
// program exits so that publishers are never blocked on the view.
func NewAppView(opts Options) AppView {
	input := textinput.New()
	input.Placeholder = "Ask the agent to edit the document..."
	input.Prompt = "> "
	input.CharLimit = 0
	input.Focus()

	searchInput := textinput.New()
	searchInput.Placeholder = "Search messages..."
	searchInput.Prompt = "/ "

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = AssistantStyle

	a := AppView{
		opts:        opts,
		viewport:    viewport.New(0, 0),
		input:       input,
		searchInput: searchInput,
		spinner:     s,
		state:       engine.StateIdle,
		streaming:   &strings.Builder{},
		events:      make(chan tea.Msg),
		done:        make(chan struct{}),
		closeOnce:   &sync.Once{},
	}
	if opts.Session != nil {
		a.session = opts.Session.Clone()
	}

	forward := func(msg tea.Msg) {
		select {
		case a.events <- msg:
		case <-a.done:
		}
	}
	a.unsubscribe = append(a.unsubscribe, opts.Engine.Subscribe(func(ev engine.Event) {
		forward(engineEventMsg{event: ev})
	}))
	if opts.Document != nil {
		a.unsubscribe = append(a.unsubscribe, opts.Document.Subscribe(func(ev document.Event) {
			forward(documentEventMsg{event: ev})
		}))
		a.refreshDocStatus()
	}
	return a
}

// Close stops forwarding events. It is safe to call more than once.
func (a AppView) Close() {
	a.closeOnce.Do(func() {
		close(a.done)
		for _, unsub := range a.unsubscribe {
			unsub()
		}
	})
}

func (a AppView) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, a.spinner.Tick, a.listen()}
	if a.session == nil {
		cmds = append(cmds, a.newSessionCmd())
	} else if a.opts.OnSessionChange != nil {
		a.opts.OnSessionChange(a.session.ID)
	}
	return tea.Batch(cmds...)
}

// listen waits for the next forwarded event.
func (a AppView) listen() tea.Cmd {
	events, done := a.events, a.done
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-done:
			return listenerClosedMsg{}
		}
	}
}

func (a AppView) busy() bool {
	return a.sending || a.state != engine.StateIdle
}

func (a *AppView) refreshSession() {
	if a.session == nil {
		return
	}
	if s, err := a.opts.Engine.Session(a.session.ID); err == nil {
		a.session = s
	}
}

func (a *AppView) refreshDocStatus() {
	if a.opts.Document == nil {
		a.docStatus = ""
		return
	}
	st, err := a.opts.Document.State()
	if err != nil {
		a.docStatus = "no document"
		return
	}
	a.docStatus = st.Path
	if st.IsDirty {
		a.docStatus += " (modified)"
	}
}

// contextText describes the active document for the next request.
func (a AppView) contextText() string {
	if a.opts.Document == nil {
		return ""
	}
	st, err := a.opts.Document.State()
	if err != nil {
		return ""
	}
	return "Active document: " + st.Path
}
