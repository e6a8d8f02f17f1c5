package storage

import (
	"fmt"
	"strings"
	"time"

	"agentedit/model"
)

// SessionMessageMatch is one hit from a cross-session search.
type SessionMessageMatch struct {
	SessionID    string
	SessionName  string
	MessageIndex int
	Role         model.Role
	Preview      string
	Timestamp    time.Time
	ToolNames    []string
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search finds archived user and assistant messages containing query,
// case-insensitively. Results come from the most recently updated sessions
// first and in message order within a session.
func (a *Archive) Search(query string) ([]SessionMessageMatch, error) {
	matches := []SessionMessageMatch{}
	if query == "" {
		return matches, nil
	}

	pattern := "%" + likeEscaper.Replace(strings.ToLower(query)) + "%"
	rows, err := a.db.Query(`
		SELECT m.session_id, s.name, m.idx, m.role, m.content, m.timestamp, m.tool_names
		FROM messages m
		JOIN sessions s ON s.id = m.session_id
		WHERE lower(m.content) LIKE ? ESCAPE '\'
		ORDER BY s.updated_at DESC, m.session_id, m.idx
	`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search archive: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			match     SessionMessageMatch
			role      string
			content   string
			timestamp any
			toolNames string
		)
		if err := rows.Scan(&match.SessionID, &match.SessionName, &match.MessageIndex,
			&role, &content, &timestamp, &toolNames); err != nil {
			return nil, fmt.Errorf("failed to read search result: %w", err)
		}
		match.Role = model.Role(role)
		match.Preview = preview(content)
		match.Timestamp = scanTime(timestamp)
		if toolNames != "" {
			match.ToolNames = strings.Split(toolNames, ",")
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}
