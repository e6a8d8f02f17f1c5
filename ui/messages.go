package ui

import (
	"agentedit/document"
	"agentedit/engine"
	"agentedit/model"
	"agentedit/storage"
)

// engineEventMsg carries an engine event into the Bubble Tea loop.
type engineEventMsg struct {
	event engine.Event
}

// documentEventMsg carries a document event into the Bubble Tea loop.
type documentEventMsg struct {
	event document.Event
}

type sendDoneMsg struct {
	sessionID string
	reply     model.ChatMessage
	err       error
}

type sessionCreatedMsg struct {
	session *model.ChatSession
}

type searchResultsMsg struct {
	query   string
	current []storage.MessageMatch
	archive []storage.SessionMessageMatch
	err     error
}

type documentSavedMsg struct {
	err error
}

// listenerClosedMsg is returned once the event channel is shut down.
type listenerClosedMsg struct{}
