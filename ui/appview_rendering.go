package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"agentedit/engine"
	"agentedit/model"
)

func (a AppView) View() string {
	if !a.ready {
		return "Initializing..."
	}

	separator := DimStyle.Render(strings.Repeat("─", max(a.width, 1)))

	inputView := a.input.View()
	if a.searchMode {
		inputView = a.searchInput.View()
	}

	return strings.Join([]string{
		a.renderTitle(),
		separator,
		a.viewport.View(),
		separator,
		inputView,
		a.renderStatus(),
	}, "\n")
}

func (a AppView) renderTitle() string {
	title := TitleStyle.Render("agentedit")
	if a.session != nil {
		tools := "off"
		if a.session.ToolsEnabled {
			tools = "on"
		}
		title += DimStyle.Render(fmt.Sprintf("  %s/%s  tools:%s", a.opts.ProviderID, a.session.SelectedModel, tools))
	}
	if a.docStatus != "" {
		title += "  " + HighlightStyle.Render(a.docStatus)
	}
	return title
}

func (a AppView) renderStatus() string {
	switch {
	case a.errMsg != "":
		return ErrorStyle.Render(a.errMsg)
	case a.searchMode:
		return StatusStyle.Render(FormatFooter("Enter", "Search", "Esc", "Back"))
	case a.busy():
		label := "Thinking..."
		if a.state == engine.StateExecutingTools {
			label = "Running tools..."
		}
		return a.spinner.View() + " " + StatusStyle.Render(label) + "  " + StatusStyle.Render(FormatFooter("Esc", "Cancel"))
	default:
		return StatusStyle.Render(FormatFooter("Enter", "Send", "Ctrl+N", "New", "Ctrl+T", "Tools", "Ctrl+S", "Save", "Ctrl+F", "Search", "Ctrl+C", "Quit"))
	}
}

// updateViewportContent re-renders the conversation (or search results)
// into the viewport.
func (a *AppView) updateViewportContent() {
	if !a.ready {
		return
	}
	if a.searchMode && a.searchResults != nil {
		a.viewport.SetContent(renderSearchResults(*a.searchResults, a.width))
		a.viewport.GotoTop()
		return
	}

	var b strings.Builder
	if a.session != nil {
		b.WriteString(renderMessages(a.session.Messages, a.width))
	}
	if a.busy() && a.state == engine.StateAwaitingAssistant {
		b.WriteString(AssistantStyle.Render("Assistant") + "\n")
		if a.streaming.Len() == 0 {
			b.WriteString(a.spinner.View() + "\n")
		} else {
			b.WriteString(wrap(a.streaming.String(), a.width) + "\n")
		}
	}
	a.viewport.SetContent(b.String())
	a.viewport.GotoBottom()
}

func renderMessages(messages []model.ChatMessage, width int) string {
	var b strings.Builder
	for _, msg := range messages {
		timestamp := DimStyle.Render(msg.Timestamp.Format("15:04"))
		switch msg.Role {
		case model.RoleUser:
			b.WriteString(UserStyle.Render("You") + " " + timestamp + "\n")
		case model.RoleAssistant:
			b.WriteString(AssistantStyle.Render("Assistant") + " " + timestamp + "\n")
		default:
			b.WriteString(DimStyle.Render(string(msg.Role)) + " " + timestamp + "\n")
		}
		if msg.Content != "" {
			b.WriteString(wrap(msg.Content, width) + "\n")
		}
		for _, call := range msg.ToolCalls {
			b.WriteString(renderToolCall(call) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderToolCall(call model.ToolCall) string {
	line := ToolStyle.Render(fmt.Sprintf("  ⚙ %s(%s)", call.Name, formatArgs(call.Arguments)))
	switch {
	case !call.Settled():
		return line + " " + DimStyle.Render("…")
	case call.Result.Failed():
		return line + " " + ErrorStyle.Render("✗ "+call.Result.Error)
	default:
		return line + " " + UserStyle.Render("✓")
	}
}

// formatArgs renders arguments as sorted key=value pairs with long values
// shortened.
func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		v := strings.ReplaceAll(fmt.Sprintf("%v", args[k]), "\n", "⏎")
		if runes := []rune(v); len(runes) > 30 {
			v = string(runes[:30]) + "..."
		}
		parts[i] = k + "=" + v
	}
	return strings.Join(parts, ", ")
}

func wrap(text string, width int) string {
	if width <= 0 {
		return text
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}
