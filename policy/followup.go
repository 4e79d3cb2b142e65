package policy

import "fmt"

// followUpsByIntent holds the canned suggestion pool per intent, most
// specific first. Suggestions are deterministic so responses stay stable
// across retries and replicas.
var followUpsByIntent = map[Intent][]string{
	IntentDebug: {
		"Try isolating one change at a time and re-test after each.",
		"Describe what you expected to happen versus what actually happened.",
		"Read your steps out loud in order — does each one do what you meant?",
	},
	IntentConcept: {
		"Try explaining the idea back in your own words.",
		"Where in your current project could you use this?",
		"What's a real-world example that works the same way?",
	},
	IntentStrategy: {
		"Break the goal into the smallest first step and build just that.",
		"Sketch what the finished version should do before coding it.",
		"Which part seems hardest? Start there while the idea is fresh.",
	},
	IntentReflection: {
		"What was the trickiest part, and how did you get past it?",
		"What would you do differently if you started over?",
		"Which new idea from today could you use in your next project?",
	},
	IntentStatus: {
		"List what's done and what's left — which remaining piece is smallest?",
		"Run what you have so far and note anything that surprises you.",
	},
	IntentGeneral: {
		"Tell me more about what you're building.",
		"Is there a part of the lesson you'd like to go deeper on?",
	},
}

// BuildFollowUpSuggestions returns up to maxItems deterministic suggestions
// keyed by intent, topped up with a topic prompt when the scope names
// topics and room remains.
func BuildFollowUpSuggestions(intent Intent, context string, topics, allowedTopics []string, historySummary string, maxItems int) []string {
	if maxItems <= 0 {
		return nil
	}

	pool := followUpsByIntent[intent]
	if pool == nil {
		pool = followUpsByIntent[IntentGeneral]
	}

	out := make([]string, 0, maxItems)
	for _, s := range pool {
		if len(out) == maxItems {
			return out
		}
		out = append(out, s)
	}

	if len(out) < maxItems && len(topics) > 0 {
		out = append(out, fmt.Sprintf("Want to explore more about %s?", topics[0]))
	}

	return out
}
