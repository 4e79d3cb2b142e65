package memory

import (
	"fmt"
	"strings"
)

// FormatForPrompt renders conversation memory as the two-part prompt block:
// the rolling summary first, then as many of the most recent turns as fit
// within maxChars, selected newest-backward. The newest turn is always
// included, truncated if it alone exceeds the budget, so the model never
// silently loses the message it is answering around.
func FormatForPrompt(turns []Turn, maxChars int, summary string) string {
	var b strings.Builder

	if summary = strings.TrimSpace(summary); summary != "" {
		b.WriteString("Conversation summary:\n")
		b.WriteString(summary)
		b.WriteString("\n\n")
	}

	if len(turns) == 0 {
		return strings.TrimSpace(b.String())
	}

	rendered := make([]string, len(turns))
	for i, t := range turns {
		rendered[i] = promptLine(t)
	}

	// Walk backward from the newest turn, keeping lines while they fit.
	budget := maxChars
	include := len(turns)
	used := 0
	for i := len(rendered) - 1; i >= 0; i-- {
		cost := len(rendered[i]) + 1
		if maxChars > 0 && used+cost > budget && i < len(rendered)-1 {
			include = i + 1
			break
		}
		used += cost
		include = i
	}

	selected := rendered[include:]
	if maxChars > 0 && len(selected) == 1 && len(selected[0]) > maxChars {
		selected[0] = selected[0][:maxChars]
	}

	b.WriteString("Recent conversation:\n")
	b.WriteString(strings.Join(selected, "\n"))
	return b.String()
}

func promptLine(t Turn) string {
	role := t.Role
	if role == "" {
		role = RoleStudent
	}
	label := strings.ToUpper(role[:1]) + role[1:]
	return fmt.Sprintf("%s: %s", label, t.Content)
}
