package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"agentedit/config"
	"agentedit/model"
)

// Archive is a SQLite index of settled conversations used for searching
// across sessions. The JSON files written by SessionStorage stay the source
// of truth; the archive can be rebuilt from them at any time.
type Archive struct {
	db *sql.DB
}

// NewArchive opens (or creates) <dataDir>/archive.db.
func NewArchive(dataDir string) (*Archive, error) {
	dbPath := filepath.Join(dataDir, "archive.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// one writer at a time; modernc serializes anyway but this avoids
	// SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	archive := &Archive{db: db}
	if err := archive.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return archive, nil
}

func (a *Archive) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		selected_model TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		PRIMARY KEY (session_id, idx)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return err
	}

	if err := a.migrateSchema(); err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	return nil
}

// migrateSchema adds columns introduced after the first release.
func (a *Archive) migrateSchema() error {
	hasToolNames, err := a.columnExists("messages", "tool_names")
	if err != nil {
		return fmt.Errorf("failed to check for tool_names column: %w", err)
	}
	if !hasToolNames {
		if _, err := a.db.Exec(`ALTER TABLE messages ADD COLUMN tool_names TEXT DEFAULT ''`); err != nil {
			return fmt.Errorf("failed to add tool_names column: %w", err)
		}
	}
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info
func (a *Archive) columnExists(tableName, columnName string) (bool, error) {
	rows, err := a.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid          int
			name         string
			dataType     string
			notNull      int
			defaultValue any
			pk           int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, err
		}
		if name == columnName {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Upsert replaces the archived copy of a session. Only user and assistant
// messages are indexed. It satisfies engine.Archiver.
func (a *Archive) Upsert(session *model.ChatSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("cannot archive session without an ID")
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (id, name, selected_model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			selected_model = excluded.selected_model,
			updated_at = excluded.updated_at
	`, session.ID, GenerateSessionName(session.FirstUserMessage()), session.SelectedModel,
		formatTime(session.CreatedAt), formatTime(session.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, session.ID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (session_id, idx, id, role, content, timestamp, tool_names)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range session.Messages {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			continue
		}
		names := make([]string, len(msg.ToolCalls))
		for j, call := range msg.ToolCalls {
			names[j] = call.Name
		}
		if _, err := stmt.Exec(session.ID, i, msg.ID, string(msg.Role), msg.Content,
			formatTime(msg.Timestamp), strings.Join(names, ",")); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Archive] Indexed session %s", session.ID)
	}
	return nil
}

// Remove drops a session and its messages from the archive.
func (a *Archive) Remove(id string) error {
	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}

// Rebuild re-indexes every session in store. Sessions missing from store are
// dropped from the archive.
func (a *Archive) Rebuild(store *SessionStorage) error {
	sessions, err := store.LoadAll()
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(sessions))
	for _, session := range sessions {
		keep[session.ID] = true
		if err := a.Upsert(session); err != nil {
			return err
		}
	}

	rows, err := a.db.Query(`SELECT id FROM sessions`)
	if err != nil {
		return fmt.Errorf("failed to list archived sessions: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if err := a.Remove(id); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of archived sessions.
func (a *Archive) Count() (int, error) {
	var n int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

func (a *Archive) Close() error {
	return a.db.Close()
}

// timeLayout is fixed-width so that ORDER BY on the text column is
// chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func scanTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case []byte:
		return scanTime(string(t))
	case string:
		for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}
