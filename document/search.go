package document

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// MatchResult is one regular expression match. Line and Column are 1-based;
// Column counts characters.
type MatchResult struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Match   string `json:"match"`
	Context string `json:"context"`
}

// Search evaluates pattern against each line of the document and returns
// every match in document order. Zero-width matches such as ^$ are reported
// at their column with an empty Match.
func (m *Manager) Search(pattern string) ([]MatchResult, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, m.fail(fmt.Errorf("%w: %w", ErrInvalidPattern, err))
	}

	content, err := m.Content()
	if err != nil {
		return nil, m.fail(err)
	}

	results := []MatchResult{}
	for i, line := range strings.Split(content, "\n") {
		for _, loc := range re.FindAllStringIndex(line, -1) {
			results = append(results, MatchResult{
				Line:    i + 1,
				Column:  utf8.RuneCountInString(line[:loc[0]]) + 1,
				Match:   line[loc[0]:loc[1]],
				Context: line,
			})
		}
	}
	return results, nil
}

// Diff returns a unified diff from snapshot id to the current content. It is
// empty when nothing changed.
func (m *Manager) Diff(id string) (string, error) {
	m.mu.Lock()
	if m.doc == nil {
		m.mu.Unlock()
		return "", ErrNoDocumentLoaded
	}
	var from string
	found := false
	for _, s := range m.doc.snapshots {
		if s.ID == id {
			from, found = s.Content, true
			break
		}
	}
	path, current := m.doc.path, m.doc.content
	m.mu.Unlock()

	if !found {
		return "", fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(current),
		FromFile: path + "@" + id,
		ToFile:   path,
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(diff)
}
