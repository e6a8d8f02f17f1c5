package document

import (
	"fmt"
	"strings"
)

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

// sanitize normalizes line endings to \n and strips NUL bytes.
func sanitize(text string) string {
	return lineEndings.Replace(text)
}

// EditOption configures a single mutation.
type EditOption func(*editOptions)

type editOptions struct {
	messageID string
}

// WithMessageID tags the mutation's snapshot with the chat message that
// caused it.
func WithMessageID(id string) EditOption {
	return func(o *editOptions) { o.messageID = id }
}

// Append adds text to the end of the document.
func (m *Manager) Append(text string, opts ...EditOption) error {
	text = sanitize(text)
	return m.mutate(opts, func(content string) (string, error) {
		return content + text, nil
	})
}

// InsertAt inserts text at character offset pos.
func (m *Manager) InsertAt(pos int, text string, opts ...EditOption) error {
	text = sanitize(text)
	return m.mutate(opts, func(content string) (string, error) {
		runes := []rune(content)
		if err := checkRange(pos, pos, len(runes)); err != nil {
			return "", err
		}
		return string(runes[:pos]) + text + string(runes[pos:]), nil
	})
}

// DeleteRange removes the characters in [start, end).
func (m *Manager) DeleteRange(start, end int, opts ...EditOption) error {
	return m.ReplaceRange(start, end, "", opts...)
}

// ReplaceRange replaces the characters in [start, end) with text.
func (m *Manager) ReplaceRange(start, end int, text string, opts ...EditOption) error {
	text = sanitize(text)
	return m.mutate(opts, func(content string) (string, error) {
		runes := []rune(content)
		if err := checkRange(start, end, len(runes)); err != nil {
			return "", err
		}
		return string(runes[:start]) + text + string(runes[end:]), nil
	})
}

// Replace substitutes the first occurrence of the literal target with text.
func (m *Manager) Replace(target, text string, opts ...EditOption) error {
	target = sanitize(target)
	text = sanitize(text)
	return m.mutate(opts, func(content string) (string, error) {
		if target == "" {
			return "", fmt.Errorf("%w: empty target", ErrTargetNotFound)
		}
		idx := strings.Index(content, target)
		if idx < 0 {
			return "", fmt.Errorf("%w: %q", ErrTargetNotFound, truncate(target, 60))
		}
		return content[:idx] + text + content[idx+len(target):], nil
	})
}

func checkRange(start, end, length int) error {
	if start < 0 || end > length || start > end {
		return fmt.Errorf("%w: [%d, %d) in document of length %d", ErrInvalidRange, start, end, length)
	}
	return nil
}

// mutate applies edit to the active document under the size ceiling, marks
// it dirty and records one tool_execution snapshot.
func (m *Manager) mutate(opts []EditOption, edit func(content string) (string, error)) error {
	var o editOptions
	for _, opt := range opts {
		opt(&o)
	}

	m.mu.Lock()
	if m.doc == nil {
		m.mu.Unlock()
		return m.fail(ErrNoDocumentLoaded)
	}
	next, err := edit(m.doc.content)
	if err == nil && len(next) > MaxContentBytes {
		err = fmt.Errorf("%w: %d bytes", ErrContentTooLarge, len(next))
	}
	if err != nil {
		m.mu.Unlock()
		return m.fail(err)
	}

	m.doc.content = next
	m.doc.dirty = true
	m.doc.snapshot(TriggerToolExecution, o.messageID)
	ev := Event{Type: EventContentChanged, Path: m.doc.path, Content: next, Trigger: TriggerToolExecution}
	m.mu.Unlock()

	m.bus.Publish(ev)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
