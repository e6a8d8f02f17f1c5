package provider

import (
	"bufio"
	"encoding/json"
	"io"
	"sort"
	"strings"

	"agentedit/config"
	"agentedit/model"
)

// maxLineBytes bounds a single SSE line.
const maxLineBytes = 2 * 1024 * 1024

// toolCallSlot accumulates one tool call across stream chunks.
type toolCallSlot struct {
	id   string
	name string
	args strings.Builder
}

// sseStream decodes an OpenAI-compatible server-sent-event body.
//
// Content deltas are handed out one at a time through Next/Current. Tool
// call fragments are merged per slot index as they arrive and finalized
// once the stream ends.
type sseStream struct {
	body    io.ReadCloser
	cancel  func()
	scanner *bufio.Scanner

	current string
	content strings.Builder
	slots   map[int]*toolCallSlot

	done    bool
	err     error
	message model.ChatMessage
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &sseStream{
		body:    body,
		scanner: scanner,
		slots:   make(map[int]*toolCallSlot),
	}
}

func (s *sseStream) Next() bool {
	if s.done {
		return false
	}
	s.current = ""

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.finish()
			return false
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] Skipping malformed stream chunk: %v", err)
			}
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		for _, tc := range delta.ToolCalls {
			s.mergeToolCall(tc)
		}
		if delta.Content != "" {
			s.content.WriteString(delta.Content)
			s.current = delta.Content
			return true
		}
	}

	if err := s.scanner.Err(); err != nil {
		s.done = true
		s.err = streamError("stream interrupted", err)
		return false
	}
	// EOF without [DONE] still yields whatever arrived
	s.finish()
	return false
}

func (s *sseStream) mergeToolCall(tc deltaToolCall) {
	slot, ok := s.slots[tc.Index]
	if !ok {
		slot = &toolCallSlot{}
		s.slots[tc.Index] = slot
	}
	if tc.ID != "" {
		slot.id = tc.ID
	}
	if tc.Function.Name != "" {
		slot.name = tc.Function.Name
	}
	slot.args.WriteString(tc.Function.Arguments)
}

// finish builds the final message. Slots that never received both an id and
// a name are dropped.
func (s *sseStream) finish() {
	s.done = true

	indexes := make([]int, 0, len(s.slots))
	for idx := range s.slots {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	msg := model.NewMessage(model.RoleAssistant, s.content.String())
	for _, idx := range indexes {
		slot := s.slots[idx]
		if slot.id == "" || slot.name == "" {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Provider] Dropping unresolved tool call slot %d (id=%q name=%q)", idx, slot.id, slot.name)
			}
			continue
		}
		msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
			ID:        slot.id,
			Name:      slot.name,
			Arguments: ParseToolArguments(slot.args.String()),
		})
	}
	s.message = msg
}

func (s *sseStream) Current() string {
	return s.current
}

func (s *sseStream) Err() error {
	return s.err
}

func (s *sseStream) Message() model.ChatMessage {
	return s.message
}

func (s *sseStream) Close() error {
	err := s.body.Close()
	if s.cancel != nil {
		s.cancel()
	}
	return err
}
