package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"agentedit/config"
	"agentedit/model"
)

// SessionMetadata is a lightweight view of a stored session for listing
type SessionMetadata struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SelectedModel string    `json:"selected_model"`
	ToolsEnabled  bool      `json:"tools_enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	MessageCount  int       `json:"message_count"`
}

// SessionStorage persists one JSON file per session under <data_dir>/sessions.
// It satisfies engine.Persister.
type SessionStorage struct {
	sessionsDir string
}

// NewSessionStorage creates a new session storage
func NewSessionStorage(dataDir string) (*SessionStorage, error) {
	sessionsDir := filepath.Join(dataDir, "sessions")

	// 0700: conversations may quote document content
	if err := os.MkdirAll(sessionsDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	return &SessionStorage{sessionsDir: sessionsDir}, nil
}

func (s *SessionStorage) sessionPath(id string) string {
	return filepath.Join(s.sessionsDir, id+".json")
}

// Save writes the session to disk with 0600 permissions.
func (s *SessionStorage) Save(session *model.ChatSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("cannot save session without an ID")
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(s.sessionPath(session.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Storage] Saved session %s (%d messages)", session.ID, len(session.Messages))
	}
	return nil
}

// Load loads a session from disk
func (s *SessionStorage) Load(id string) (*model.ChatSession, error) {
	data, err := os.ReadFile(s.sessionPath(id))
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session model.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.Messages == nil {
		session.Messages = []model.ChatMessage{}
	}
	return &session, nil
}

// LoadAll returns every readable session, newest first. Corrupted files are
// skipped.
func (s *SessionStorage) LoadAll() ([]*model.ChatSession, error) {
	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var sessions []*model.ChatSession
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		session, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Storage] Skipping unreadable session %s: %v", entry.Name(), err)
			}
			continue
		}
		sessions = append(sessions, session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// List returns metadata for all sessions, sorted by update time (newest first)
func (s *SessionStorage) List() ([]SessionMetadata, error) {
	sessions, err := s.LoadAll()
	if err != nil {
		return nil, err
	}

	metadata := make([]SessionMetadata, len(sessions))
	for i, session := range sessions {
		metadata[i] = SessionMetadata{
			ID:            session.ID,
			Name:          GenerateSessionName(session.FirstUserMessage()),
			SelectedModel: session.SelectedModel,
			ToolsEnabled:  session.ToolsEnabled,
			CreatedAt:     session.CreatedAt,
			UpdatedAt:     session.UpdatedAt,
			MessageCount:  len(session.Messages),
		}
	}
	return metadata, nil
}

// Delete removes a session file. Deleting a session that was never saved is
// not an error.
func (s *SessionStorage) Delete(id string) error {
	if err := os.Remove(s.sessionPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

// SaveCurrentSessionID saves the ID of the current session
func (s *SessionStorage) SaveCurrentSessionID(id string) error {
	path := filepath.Join(filepath.Dir(s.sessionsDir), "current_session.id")
	return os.WriteFile(path, []byte(id), 0600)
}

// LoadCurrentSessionID loads the ID of the last active session
func (s *SessionStorage) LoadCurrentSessionID() (string, error) {
	path := filepath.Join(filepath.Dir(s.sessionsDir), "current_session.id")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ExportToJSON exports a session to a JSON file at the specified path
func (s *SessionStorage) ExportToJSON(id string, exportPath string) error {
	session, err := s.Load(id)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(exportPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-", "\"", "-",
	"<", "-", ">", "-", "|", "-", " ", "-", "\n", "-", "\r", "-",
)

// SanitizeFilename removes or replaces characters that are invalid in filenames
func SanitizeFilename(name string) string {
	name = strings.Trim(filenameReplacer.Replace(name), "-.")
	if len(name) > 50 {
		name = name[:50]
	}
	if name == "" {
		name = "session"
	}
	return name
}

// GenerateExportPath generates a default export path for a session
func GenerateExportPath(sessionName string) string {
	filename := fmt.Sprintf("agentedit-session-%s-%s.json", SanitizeFilename(sessionName), time.Now().Format("20060102-150405"))
	return filepath.Join(config.GetHomeDir(), "Downloads", filename)
}

// GenerateSessionName generates a session name from the first user message
func GenerateSessionName(firstMessage string) string {
	name := strings.TrimSpace(strings.NewReplacer("\n", " ", "\r", " ").Replace(firstMessage))
	if name == "" {
		return "New session"
	}
	if runes := []rune(name); len(runes) > 30 {
		name = string(runes[:30]) + "..."
	}
	return name
}

// MessageMatch represents a search result within a session
type MessageMatch struct {
	MessageIndex int
	Role         model.Role
	Preview      string
	Timestamp    time.Time
}

// SearchMessages does a case-insensitive substring search over one
// session's user and assistant messages.
func SearchMessages(messages []model.ChatMessage, query string) []MessageMatch {
	matches := []MessageMatch{}
	if query == "" {
		return matches
	}

	queryLower := strings.ToLower(query)
	for i, msg := range messages {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			continue
		}
		if strings.Contains(strings.ToLower(msg.Content), queryLower) {
			matches = append(matches, MessageMatch{
				MessageIndex: i,
				Role:         msg.Role,
				Preview:      preview(msg.Content),
				Timestamp:    msg.Timestamp,
			})
		}
	}
	return matches
}

// preview truncates content to 100 characters.
func preview(content string) string {
	runes := []rune(content)
	if len(runes) > 100 {
		return string(runes[:100]) + "..."
	}
	return content
}

// LockInstance records this process as the owner of the data directory.
func (s *SessionStorage) LockInstance() error {
	return os.WriteFile(s.lockPath(), []byte(fmt.Sprintf("%d", os.Getpid())), 0600)
}

// UnlockInstance removes the instance lock.
func (s *SessionStorage) UnlockInstance() error {
	err := os.Remove(s.lockPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// CheckInstanceLock reports whether another agentedit process holds the
// data directory, and its PID. Unparseable lock files are removed.
func (s *SessionStorage) CheckInstanceLock() (bool, int, error) {
	data, err := os.ReadFile(s.lockPath())
	if errors.Is(err, os.ErrNotExist) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read lock file: %w", err)
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		_ = os.Remove(s.lockPath())
		return false, 0, nil
	}
	if pid == os.Getpid() {
		return false, pid, nil
	}

	// os.FindProcess always succeeds on Unix; this only catches stale
	// locks on Windows
	if _, err := os.FindProcess(pid); err != nil {
		_ = os.Remove(s.lockPath())
		return false, 0, nil
	}
	return true, pid, nil
}

func (s *SessionStorage) lockPath() string {
	return filepath.Join(filepath.Dir(s.sessionsDir), "agentedit.lock")
}
