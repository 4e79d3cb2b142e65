package reference

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// minTokenLen filters out stop-word sized tokens before overlap scoring.
const minTokenLen = 4

// BuildCitations ranks chunks against the query (message plus scope context
// and topics) by token overlap and returns the top maxItems as citations.
//
// When nothing overlaps, the first maxItems chunks are returned verbatim: a
// deterministic fallback is more useful to the model than an empty citation
// list when reference material exists at all.
func BuildCitations(message, context string, topics []string, chunks []Chunk, source string, maxItems int) []Citation {
	if maxItems <= 0 || len(chunks) == 0 {
		return nil
	}

	query := Tokenize(message + " " + context + " " + strings.Join(topics, " "))

	type scored struct {
		index int
		score int
	}
	ranked := make([]scored, 0, len(chunks))
	for i, chunk := range chunks {
		ranked = append(ranked, scored{index: i, score: overlap(query, Tokenize(chunk.Text))})
	}

	// Stable sort keeps original document order for equal scores.
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if ranked[0].score == 0 {
		// No overlap anywhere: fall back to document order.
		ranked = ranked[:0]
		for i := range chunks {
			ranked = append(ranked, scored{index: i})
		}
	}

	if len(ranked) > maxItems {
		ranked = ranked[:maxItems]
	}

	out := make([]Citation, len(ranked))
	for i, s := range ranked {
		out[i] = Citation{
			ID:     fmt.Sprintf("L%d", i+1),
			Source: source,
			Text:   chunks[s.index].Text,
		}
	}
	return out
}

// Tokenize lowercases the input and returns the set of alphanumeric runs of
// at least minTokenLen characters.
func Tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})

	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if len(f) >= minTokenLen {
			tokens[f] = struct{}{}
		}
	}
	return tokens
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}
