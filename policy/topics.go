package policy

import (
	"strings"
	"unicode"
)

// TopicRedirectMessage is the fixed response when strict topic filtering
// finds no overlap between the message and the allowed topics.
const TopicRedirectMessage = "That's a bit outside what this lesson covers. Let's keep " +
	"the focus on today's topics — ask me anything about those and I'll dig in with you."

// AllowedTopicOverlap reports whether the message touches the allowed topic
// set. An empty allow-list means unrestricted, so it always passes.
func AllowedTopicOverlap(message string, allowedTopics []string) bool {
	if len(allowedTopics) == 0 {
		return true
	}

	messageTokens := tokenSet(message)
	for _, topic := range allowedTopics {
		for tok := range tokenSet(topic) {
			if _, ok := messageTokens[tok]; ok {
				return true
			}
		}
	}
	return false
}

// tokenSet mirrors the citation tokenizer: lowercase alphanumeric runs of
// at least four characters.
func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, f := range fields {
		if len(f) >= 4 {
			out[f] = struct{}{}
		}
	}
	return out
}
