package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"agentedit/config"
	"agentedit/document"
	"agentedit/engine"
	"agentedit/model"
	"agentedit/storage"
)

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

		// title (1) + separators (2) + input (1) + status bar (1)
		a.viewport.Width = a.width
		a.viewport.Height = max(a.height-5, 1)
		a.input.Width = max(a.width-4, 10)
		a.searchInput.Width = max(a.width-4, 10)
		a.ready = true
		a.updateViewportContent()
		return a, nil

	case tea.KeyMsg:
		if a.searchMode {
			return a.handleSearchKey(msg)
		}
		return a.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		if a.busy() {
			a.updateViewportContent()
		}
		return a, cmd

	case engineEventMsg:
		a.handleEngineEvent(msg.event)
		return a, a.listen()

	case documentEventMsg:
		if msg.event.Type == document.EventError && msg.event.Err != nil {
			a.errMsg = msg.event.Err.Error()
		}
		a.refreshDocStatus()
		return a, a.listen()

	case listenerClosedMsg:
		return a, nil

	case sessionCreatedMsg:
		a.session = msg.session
		a.state = engine.StateIdle
		a.streaming.Reset()
		a.errMsg = ""
		if a.opts.OnSessionChange != nil {
			a.opts.OnSessionChange(a.session.ID)
		}
		a.updateViewportContent()
		return a, nil

	case sendDoneMsg:
		if a.session == nil || msg.sessionID != a.session.ID {
			return a, nil
		}
		a.sending = false
		a.streaming.Reset()
		if msg.err != nil {
			if errors.Is(msg.err, context.Canceled) {
				a.errMsg = "Cancelled"
			} else {
				a.errMsg = msg.err.Error()
			}
		}
		a.refreshSession()
		a.updateViewportContent()
		return a, nil

	case documentSavedMsg:
		if msg.err != nil {
			a.errMsg = msg.err.Error()
		}
		a.refreshDocStatus()
		return a, nil

	case searchResultsMsg:
		if msg.err != nil {
			a.errMsg = msg.err.Error()
		}
		a.searchResults = &msg
		a.updateViewportContent()
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

func (a AppView) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if a.session != nil {
			_ = a.opts.Engine.Cancel(a.session.ID)
		}
		a.Close()
		return a, tea.Quit

	case "esc":
		if a.busy() && a.session != nil {
			_ = a.opts.Engine.Cancel(a.session.ID)
		}
		return a, nil

	case "enter":
		text := strings.TrimSpace(a.input.Value())
		if text == "" || a.session == nil || a.busy() {
			return a, nil
		}
		a.input.Reset()
		a.sending = true
		a.errMsg = ""
		a.streaming.Reset()
		return a, a.sendCmd(text)

	case "ctrl+n":
		if a.busy() {
			return a, nil
		}
		return a, a.newSessionCmd()

	case "ctrl+t":
		if a.session == nil {
			return a, nil
		}
		return a, a.toggleToolsCmd(!a.session.ToolsEnabled)

	case "ctrl+s":
		if a.opts.Document == nil {
			return a, nil
		}
		return a, a.saveDocumentCmd()

	case "ctrl+f":
		a.searchMode = true
		a.searchResults = nil
		a.input.Blur()
		cmd := a.searchInput.Focus()
		return a, cmd

	case "pgup", "pgdown":
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a AppView) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		a.Close()
		return a, tea.Quit

	case "esc":
		a.searchMode = false
		a.searchResults = nil
		a.searchInput.Reset()
		a.searchInput.Blur()
		a.updateViewportContent()
		cmd := a.input.Focus()
		return a, cmd

	case "enter":
		return a, a.searchCmd(strings.TrimSpace(a.searchInput.Value()))
	}

	var cmd tea.Cmd
	a.searchInput, cmd = a.searchInput.Update(msg)
	return a, cmd
}

func (a *AppView) handleEngineEvent(ev engine.Event) {
	if a.session == nil || ev.SessionID != a.session.ID {
		return
	}

	switch ev.Type {
	case engine.EventMessageAdded:
		if ev.Message != nil && ev.Message.Role == model.RoleAssistant {
			a.streaming.Reset()
		}
		a.refreshSession()
	case engine.EventMessageUpdated:
		a.refreshSession()
	case engine.EventStreamingChunk:
		a.streaming.WriteString(ev.Chunk)
	case engine.EventStateChanged:
		a.state = ev.State
		if ev.State != engine.StateExecutingTools {
			a.streaming.Reset()
		}
	case engine.EventSessionUpdated:
		if ev.Session != nil {
			a.session = ev.Session
		}
	case engine.EventError:
		if ev.Err != nil {
			a.errMsg = ev.Err.Error()
		}
	}
	a.updateViewportContent()
}

func (a AppView) sendCmd(text string) tea.Cmd {
	eng := a.opts.Engine
	sessionID := a.session.ID
	providerID, modelName := a.opts.ProviderID, a.session.SelectedModel
	if modelName == "" {
		modelName = a.opts.Model
	}
	contextText := a.contextText()

	return func() tea.Msg {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Sending message in session %s", sessionID)
		}
		reply, err := eng.SendMessage(context.Background(), sessionID, text, providerID, modelName, contextText)
		return sendDoneMsg{sessionID: sessionID, reply: reply, err: err}
	}
}

func (a AppView) newSessionCmd() tea.Cmd {
	eng := a.opts.Engine
	modelName, tools := a.opts.Model, a.opts.ToolsEnabled
	if a.session != nil {
		modelName, tools = a.session.SelectedModel, a.session.ToolsEnabled
	}
	return func() tea.Msg {
		return sessionCreatedMsg{session: eng.CreateSession(modelName, tools)}
	}
}

func (a AppView) toggleToolsCmd(enabled bool) tea.Cmd {
	eng := a.opts.Engine
	sessionID := a.session.ID
	return func() tea.Msg {
		if _, err := eng.UpdateSession(sessionID, engine.SessionUpdate{ToolsEnabled: &enabled}); err != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[UI] Failed to toggle tools: %v", err)
		}
		return nil
	}
}

func (a AppView) saveDocumentCmd() tea.Cmd {
	doc := a.opts.Document
	return func() tea.Msg {
		return documentSavedMsg{err: doc.Save(context.Background())}
	}
}

func (a AppView) searchCmd(query string) tea.Cmd {
	session := a.session
	archive := a.opts.Archive
	return func() tea.Msg {
		res := searchResultsMsg{query: query}
		if session != nil {
			res.current = storage.SearchMessages(session.Messages, query)
		}
		if archive != nil && query != "" {
			res.archive, res.err = archive.Search(query)
		}
		return res
	}
}
