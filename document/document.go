// Package document holds the single active document the user and the agent
// edit together.
//
// Every mutation goes through Manager so the dirty flag and the snapshot ring
// stay consistent no matter who made the change.
package document

import (
	"errors"
	"time"

	"agentedit/workspace"
)

const (
	// MaxContentBytes is the hard ceiling on document size.
	MaxContentBytes = 10 * 1024 * 1024
	// MaxSnapshots bounds the snapshot ring; the oldest entry is evicted first.
	MaxSnapshots = 10
)

var (
	ErrNoDocumentLoaded = errors.New("no document loaded")
	ErrContentTooLarge  = errors.New("content exceeds 10 MiB limit")
	ErrTargetNotFound   = errors.New("target text not found")
	ErrInvalidRange     = errors.New("invalid range")
	ErrInvalidPattern   = errors.New("invalid search pattern")
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrFileRead         = errors.New("failed to read file")
	ErrFileWrite        = errors.New("failed to write file")
)

// Trigger records what caused a snapshot.
type Trigger string

const (
	TriggerManualSave    Trigger = "manual_save"
	TriggerToolExecution Trigger = "tool_execution"
	TriggerAutoSave      Trigger = "auto_save"
)

// Snapshot is a point-in-time copy of the document content.
type Snapshot struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Content   string    `json:"content"`
	Trigger   Trigger   `json:"trigger_event"`
	MessageID string    `json:"message_id,omitempty"`
}

// State is a copy of the active document.
type State struct {
	Ref       workspace.Ref `json:"handle"`
	Path      string        `json:"path"`
	Content   string        `json:"content"`
	IsDirty   bool          `json:"is_dirty"`
	LastSaved time.Time     `json:"last_saved"`
	Snapshots []Snapshot    `json:"snapshots"`
}

// EventType identifies a document notification.
type EventType string

const (
	EventDocumentLoaded EventType = "document_loaded"
	EventContentChanged EventType = "content_changed"
	EventDocumentSaved  EventType = "document_saved"
	EventError          EventType = "error"
)

// Event is published to document listeners after the change is applied.
type Event struct {
	Type    EventType
	Path    string
	Content string
	Trigger Trigger
	Err     error
}
