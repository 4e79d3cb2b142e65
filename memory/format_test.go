package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatForPrompt_SummaryAndTurns(t *testing.T) {
	out := FormatForPrompt([]Turn{
		{Role: RoleStudent, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}, 1000, "Student: earlier question")

	assert.True(t, strings.HasPrefix(out, "Conversation summary:\n"))
	assert.Contains(t, out, "earlier question")
	assert.Contains(t, out, "Recent conversation:\nStudent: hi\nAssistant: hello")
}

func TestFormatForPrompt_NoSummary(t *testing.T) {
	out := FormatForPrompt([]Turn{{Role: RoleStudent, Content: "hi"}}, 1000, "")

	assert.False(t, strings.Contains(out, "Conversation summary"))
	assert.Contains(t, out, "Recent conversation:\nStudent: hi")
}

func TestFormatForPrompt_BudgetDropsOldestFirst(t *testing.T) {
	turns := []Turn{
		{Role: RoleStudent, Content: strings.Repeat("a", 50)},
		{Role: RoleAssistant, Content: strings.Repeat("b", 50)},
		{Role: RoleStudent, Content: strings.Repeat("c", 50)},
	}

	out := FormatForPrompt(turns, 130, "")

	assert.Contains(t, out, "c")
	assert.Contains(t, out, "b")
	assert.NotContains(t, out, "aaa", "oldest turn dropped when over budget")
}

func TestFormatForPrompt_NewestTurnNeverDropped(t *testing.T) {
	turns := []Turn{
		{Role: RoleStudent, Content: "older message"},
		{Role: RoleAssistant, Content: strings.Repeat("z", 500)},
	}

	out := FormatForPrompt(turns, 100, "")

	assert.Contains(t, out, "z", "newest turn must appear even when oversized")
	assert.NotContains(t, out, "older message")
}

func TestFormatForPrompt_Empty(t *testing.T) {
	assert.Equal(t, "", FormatForPrompt(nil, 100, ""))
	assert.Equal(t, "Conversation summary:\nsum", FormatForPrompt(nil, 100, "sum"))
}
