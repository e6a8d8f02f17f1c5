package document

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"agentedit/config"
	"agentedit/events"
	"agentedit/workspace"
)

// RetryConfig bounds the backoff used around file I/O.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig retries three times starting at 100ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

type activeDocument struct {
	ref       workspace.Ref
	path      string
	content   string
	dirty     bool
	lastSaved time.Time
	snapshots []Snapshot
}

func (d *activeDocument) snapshot(trigger Trigger, messageID string) {
	d.snapshots = append(d.snapshots, Snapshot{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Content:   d.content,
		Trigger:   trigger,
		MessageID: messageID,
	})
	if over := len(d.snapshots) - MaxSnapshots; over > 0 {
		d.snapshots = append([]Snapshot(nil), d.snapshots[over:]...)
	}
}

// Manager owns the active document.
type Manager struct {
	fs    workspace.FileSystem
	cache *workspace.ContentCache
	bus   *events.Bus[Event]
	retry RetryConfig

	mu  sync.Mutex
	doc *activeDocument

	autoSaveMu   sync.Mutex
	autoSaveStop chan struct{}
	autoSaveDone chan struct{}
}

// NewManager creates a Manager that reads and writes through fs. cache may be
// nil.
func NewManager(fs workspace.FileSystem, cache *workspace.ContentCache, retry RetryConfig) *Manager {
	return &Manager{
		fs:    fs,
		cache: cache,
		bus:   events.NewBus[Event](),
		retry: retry,
	}
}

// Subscribe registers fn for document events.
func (m *Manager) Subscribe(fn func(Event)) (unsubscribe func()) {
	return m.bus.Subscribe(fn)
}

// Load reads ref and makes it the active document, discarding any previous
// one. Line endings are normalized to \n. Files over MaxContentBytes are
// refused and the previous document stays active.
func (m *Manager) Load(ctx context.Context, ref workspace.Ref, path string) (State, error) {
	content, err := m.cache.CachedRead(ctx, ref, func(ctx context.Context, ref workspace.Ref) (string, error) {
		var body string
		err := m.withRetry(ctx, "read "+path, func() error {
			var err error
			body, err = m.fs.ReadBytes(ctx, ref)
			return err
		})
		return body, err
	})
	if err != nil {
		return State{}, m.fail(fmt.Errorf("%w %s: %w", ErrFileRead, path, err))
	}
	content = sanitize(content)
	if len(content) > MaxContentBytes {
		return State{}, m.fail(fmt.Errorf("%w: %s is %d bytes", ErrContentTooLarge, path, len(content)))
	}

	m.mu.Lock()
	doc := &activeDocument{
		ref:       ref,
		path:      path,
		content:   content,
		lastSaved: time.Now(),
	}
	doc.snapshot(TriggerManualSave, "")
	m.doc = doc
	state := m.stateLocked()
	m.mu.Unlock()

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Document] Loaded %s (%d bytes)", path, len(content))
	}
	m.bus.Publish(Event{Type: EventDocumentLoaded, Path: path, Content: content})
	return state, nil
}

// Content returns the active document text.
func (m *Manager) Content() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return "", ErrNoDocumentLoaded
	}
	return m.doc.content, nil
}

// State returns a copy of the active document.
func (m *Manager) State() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return State{}, ErrNoDocumentLoaded
	}
	return m.stateLocked(), nil
}

// Loaded reports whether a document is active.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc != nil
}

// Snapshots returns the snapshot ring, oldest first.
func (m *Manager) Snapshots() ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.doc == nil {
		return nil, ErrNoDocumentLoaded
	}
	return append([]Snapshot(nil), m.doc.snapshots...), nil
}

// Save writes the active document back to its file.
func (m *Manager) Save(ctx context.Context) error {
	return m.save(ctx, TriggerManualSave)
}

func (m *Manager) save(ctx context.Context, trigger Trigger) error {
	m.mu.Lock()
	if m.doc == nil {
		m.mu.Unlock()
		return m.fail(ErrNoDocumentLoaded)
	}
	doc := m.doc
	ref, path, content := doc.ref, doc.path, doc.content
	m.mu.Unlock()

	err := m.withRetry(ctx, "write "+path, func() error {
		return m.fs.WriteBytes(ctx, ref, content)
	})
	if err != nil {
		return m.fail(fmt.Errorf("%w %s: %w", ErrFileWrite, path, err))
	}
	m.cache.Put(ref, content)

	m.mu.Lock()
	// The document may have been cleared or replaced while writing
	if m.doc == doc {
		doc.lastSaved = time.Now()
		doc.dirty = doc.content != content
		doc.snapshot(trigger, "")
	}
	m.mu.Unlock()

	m.bus.Publish(Event{Type: EventDocumentSaved, Path: path, Content: content, Trigger: trigger})
	return nil
}

// Revert restores the content captured by snapshot id. The restored state is
// dirty relative to the file and gets its own manual_save snapshot.
func (m *Manager) Revert(id string) error {
	m.mu.Lock()
	if m.doc == nil {
		m.mu.Unlock()
		return m.fail(ErrNoDocumentLoaded)
	}
	var target *Snapshot
	for i := range m.doc.snapshots {
		if m.doc.snapshots[i].ID == id {
			target = &m.doc.snapshots[i]
			break
		}
	}
	if target == nil {
		m.mu.Unlock()
		return m.fail(fmt.Errorf("%w: %s", ErrSnapshotNotFound, id))
	}
	m.doc.content = target.Content
	m.doc.dirty = true
	m.doc.snapshot(TriggerManualSave, "")
	ev := Event{Type: EventContentChanged, Path: m.doc.path, Content: m.doc.content, Trigger: TriggerManualSave}
	m.mu.Unlock()

	m.bus.Publish(ev)
	return nil
}

// Clear discards the active document. It is a no-op if none is loaded.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.doc = nil
	m.mu.Unlock()
}

// StartAutoSave saves the document every interval while it is dirty. Any
// previous auto-save loop is stopped first. Close stops it.
func (m *Manager) StartAutoSave(interval time.Duration) {
	m.stopAutoSave()
	if interval <= 0 {
		return
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	m.autoSaveMu.Lock()
	m.autoSaveStop, m.autoSaveDone = stop, done
	m.autoSaveMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !m.dirty() {
					continue
				}
				ctx, cancel := context.WithCancel(context.Background())
				go func() {
					select {
					case <-stop:
						cancel()
					case <-ctx.Done():
					}
				}()
				if err := m.save(ctx, TriggerAutoSave); err != nil && config.DebugLog != nil {
					config.DebugLog.Printf("[Document] Auto-save failed: %v", err)
				}
				cancel()
			}
		}
	}()
}

// Close stops auto-save and waits for an in-flight auto-save to finish.
func (m *Manager) Close() {
	m.stopAutoSave()
}

func (m *Manager) stopAutoSave() {
	m.autoSaveMu.Lock()
	stop, done := m.autoSaveStop, m.autoSaveDone
	m.autoSaveStop, m.autoSaveDone = nil, nil
	m.autoSaveMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (m *Manager) dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.doc != nil && m.doc.dirty
}

func (m *Manager) stateLocked() State {
	return State{
		Ref:       m.doc.ref,
		Path:      m.doc.path,
		Content:   m.doc.content,
		IsDirty:   m.doc.dirty,
		LastSaved: m.doc.lastSaved,
		Snapshots: append([]Snapshot(nil), m.doc.snapshots...),
	}
}

// withRetry runs op with bounded exponential backoff. Errors the file system
// marks permanent are not retried.
func (m *Manager) withRetry(ctx context.Context, what string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if m.retry.InitialInterval > 0 {
		b.InitialInterval = m.retry.InitialInterval
	}
	if m.retry.MaxInterval > 0 {
		b.MaxInterval = m.retry.MaxInterval
	}
	b.MaxElapsedTime = 0

	retries := m.retry.MaxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && workspace.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Document] %s failed, retrying in %v: %v", what, wait, err)
		}
	})
}

// fail publishes err as an error event and returns it.
func (m *Manager) fail(err error) error {
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Document] %v", err)
	}
	m.bus.Publish(Event{Type: EventError, Err: err})
	return err
}
