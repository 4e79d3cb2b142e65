package memory

import (
	"fmt"
	"strings"
)

// Compact folds overflow turns into the rolling summary when the turn count
// exceeds maxMessages, keeping only the newest maxMessages turns verbatim.
//
// Overflow turns are appended to the summary as "Role [intent]: content"
// lines. When the combined summary exceeds summaryMaxChars it is trimmed
// from the oldest end, always at a line boundary, so the newest summarized
// history survives. Compacting a conversation already within bounds returns
// it unchanged.
func Compact(turns []Turn, maxMessages int, summary string, summaryMaxChars int) (string, []Turn, bool) {
	if maxMessages <= 0 || len(turns) <= maxMessages {
		return summary, turns, false
	}

	overflow := turns[:len(turns)-maxMessages]
	kept := turns[len(turns)-maxMessages:]

	lines := make([]string, 0, len(overflow))
	for _, t := range overflow {
		lines = append(lines, summaryLine(t))
	}

	combined := strings.TrimSpace(summary)
	if combined != "" {
		combined += "\n"
	}
	combined += strings.Join(lines, "\n")

	return trimSummary(combined, summaryMaxChars), kept, true
}

// summaryLine renders one turn for the rolling summary.
func summaryLine(t Turn) string {
	role := t.Role
	if role == "" {
		role = RoleStudent
	}
	label := strings.ToUpper(role[:1]) + role[1:]
	if t.Intent != "" {
		return fmt.Sprintf("%s [%s]: %s", label, t.Intent, t.Content)
	}
	return fmt.Sprintf("%s: %s", label, t.Content)
}

// trimSummary cuts a summary to maxChars by dropping whole lines from the
// oldest (front) end. A single oversized line is hard-truncated from its
// front so the newest text is what remains.
func trimSummary(summary string, maxChars int) string {
	if maxChars <= 0 || len(summary) <= maxChars {
		return summary
	}

	lines := strings.Split(summary, "\n")
	for len(lines) > 1 {
		lines = lines[1:]
		candidate := strings.Join(lines, "\n")
		if len(candidate) <= maxChars {
			return candidate
		}
	}

	last := lines[0]
	return last[len(last)-maxChars:]
}
