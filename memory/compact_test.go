package memory

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTurns(n int) []Turn {
	turns := make([]Turn, n)
	for i := range turns {
		role := RoleStudent
		if i%2 == 1 {
			role = RoleAssistant
		}
		turns[i] = Turn{Role: role, Content: fmt.Sprintf("turn %d", i), Intent: "general"}
	}
	return turns
}

func TestCompact_WithinBoundsUnchanged(t *testing.T) {
	turns := makeTurns(4)

	summary, kept, compacted := Compact(turns, 10, "existing summary", 500)

	assert.False(t, compacted)
	assert.Equal(t, "existing summary", summary)
	assert.Equal(t, turns, kept)
}

func TestCompact_ExactBoundUnchanged(t *testing.T) {
	turns := makeTurns(10)

	_, kept, compacted := Compact(turns, 10, "", 500)

	assert.False(t, compacted)
	assert.Len(t, kept, 10)
}

func TestCompact_OverflowFoldedIntoSummary(t *testing.T) {
	turns := makeTurns(7)

	summary, kept, compacted := Compact(turns, 5, "", 2000)

	assert.True(t, compacted)
	require.Len(t, kept, 5)
	assert.Equal(t, "turn 2", kept[0].Content, "newest five turns survive verbatim")

	assert.Contains(t, summary, "Student [general]: turn 0")
	assert.Contains(t, summary, "Assistant [general]: turn 1")
	assert.NotContains(t, summary, "turn 2")
}

func TestCompact_AppendsToExistingSummary(t *testing.T) {
	turns := makeTurns(6)

	summary, _, compacted := Compact(turns, 5, "Student: older history", 2000)

	assert.True(t, compacted)
	lines := strings.Split(summary, "\n")
	assert.Equal(t, "Student: older history", lines[0], "existing summary stays oldest-first")
	assert.Contains(t, lines[1], "turn 0")
}

func TestCompact_SummaryTrimsFromOldestEnd(t *testing.T) {
	turns := makeTurns(30)

	summary, kept, compacted := Compact(turns, 5, "", 120)

	assert.True(t, compacted)
	assert.Len(t, kept, 5)
	assert.LessOrEqual(t, len(summary), 120)
	// The newest summarized turn (turn 24) must survive the trim.
	assert.Contains(t, summary, "turn 24")
	assert.NotContains(t, summary, "turn 0")
}

func TestCompact_SingleOversizedLine(t *testing.T) {
	long := strings.Repeat("x", 300)
	turns := append([]Turn{{Role: RoleStudent, Content: long}}, makeTurns(5)...)

	summary, _, compacted := Compact(turns, 5, "", 100)

	assert.True(t, compacted)
	assert.Len(t, summary, 100, "oversized line hard-truncated keeping its tail")
}

func TestTrimSummary(t *testing.T) {
	assert.Equal(t, "short", trimSummary("short", 100))
	assert.Equal(t, "b\nc", trimSummary("a\nb\nc", 4))
	assert.Equal(t, "", trimSummary("", 10))
	assert.Equal(t, "abc", trimSummary("abc", 0), "zero cap disables trimming")
}
