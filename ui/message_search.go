package ui

import (
	"fmt"
	"strings"
)

func renderSearchResults(res searchResultsMsg, width int) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Results for %q", res.query)) + "\n\n")

	b.WriteString(HighlightStyle.Render("Current session") + "\n")
	if len(res.current) == 0 {
		b.WriteString(DimStyle.Render("No matches found") + "\n")
	}
	for _, m := range res.current {
		b.WriteString(fmt.Sprintf("%s %s\n", DimStyle.Render(fmt.Sprintf("#%d %s", m.MessageIndex, m.Role)), wrap(m.Preview, width-12)))
	}

	b.WriteString("\n" + HighlightStyle.Render("All sessions") + "\n")
	if len(res.archive) == 0 {
		b.WriteString(DimStyle.Render("No matches found") + "\n")
	}
	for _, m := range res.archive {
		header := fmt.Sprintf("%s #%d %s", m.SessionName, m.MessageIndex, m.Role)
		if len(m.ToolNames) > 0 {
			header += " [" + strings.Join(m.ToolNames, ", ") + "]"
		}
		b.WriteString(DimStyle.Render(header) + "\n" + wrap(m.Preview, width) + "\n")
	}
	return b.String()
}
