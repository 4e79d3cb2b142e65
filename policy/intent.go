// Package policy implements the deterministic heuristics that run before any
// backend call: intent classification, redirect rules for off-scope or
// hardware-failure messages, topic filtering, and follow-up suggestions.
// Everything here is a pure function over text, so the ordering the
// orchestrator applies is the only behavior that matters.
package policy

import "strings"

// Intent tags what kind of help a message is asking for. It steers the
// system prompt and the follow-up suggestions, never the backend choice.
type Intent string

const (
	IntentDebug      Intent = "debug"
	IntentConcept    Intent = "concept"
	IntentStrategy   Intent = "strategy"
	IntentReflection Intent = "reflection"
	IntentStatus     Intent = "status"
	IntentGeneral    Intent = "general"
)

// intentPhrases maps each intent to its trigger phrases, checked in the
// order of intentOrder. First hit wins.
var intentPhrases = map[Intent][]string{
	IntentDebug: {
		"doesn't work", "does not work", "not working", "won't work",
		"broken", "bug", "error", "crash", "stuck on", "went wrong",
		"wrong thing", "fix my", "stopped working",
	},
	IntentConcept: {
		"what is", "what are", "what does", "explain", "how does",
		"why does", "why is", "difference between", "mean",
	},
	IntentStrategy: {
		"how do i", "how can i", "how should i", "where do i start",
		"plan", "approach", "next step", "steps to", "best way",
	},
	IntentReflection: {
		"i learned", "what did i", "went well", "could i improve",
		"feedback", "did i do", "review my",
	},
	IntentStatus: {
		"progress", "how far", "am i done", "finished", "complete",
		"where am i",
	},
}

// intentOrder fixes the priority between overlapping phrase sets.
var intentOrder = []Intent{IntentDebug, IntentConcept, IntentStrategy, IntentReflection, IntentStatus}

// ClassifyIntent tags a message with the best-matching intent, defaulting
// to general.
func ClassifyIntent(message string) Intent {
	lower := strings.ToLower(message)

	for _, intent := range intentOrder {
		for _, phrase := range intentPhrases[intent] {
			if strings.Contains(lower, phrase) {
				return intent
			}
		}
	}
	return IntentGeneral
}
