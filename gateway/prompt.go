package gateway

import (
	"fmt"
	"strings"

	"github.com/c360studio/tutorgate/policy"
	"github.com/c360studio/tutorgate/reference"
	"github.com/c360studio/tutorgate/scope"
)

// basePrompt is the tutoring stance every backend call carries. It asks for
// guidance rather than finished answers and pins the model to the lesson.
const basePrompt = `You are a patient coding tutor for school students.
Guide the student toward their own solution with questions and small hints.
Do not write complete solutions for them. Keep answers short and encouraging.
Stay within the lesson context described below and decline unrelated topics.`

// intentHints adjusts the tutoring stance per classified intent.
var intentHints = map[policy.Intent]string{
	policy.IntentDebug:      "The student is debugging. Help them narrow down what changed and test one thing at a time.",
	policy.IntentConcept:    "The student wants a concept explained. Use a short, concrete example from their lesson.",
	policy.IntentStrategy:   "The student is planning. Help them break the task into small ordered steps.",
	policy.IntentReflection: "The student is reflecting. Ask what worked, what was hard, and what they would try next.",
	policy.IntentStatus:     "The student is checking progress. Summarize what the conversation shows they have done.",
}

// buildInstructions assembles the system prompt from the scope envelope,
// conversation memory, and citations.
func buildInstructions(env scope.Envelope, history string, citations []reference.Citation, intent policy.Intent) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	if hint, ok := intentHints[intent]; ok {
		b.WriteString("\n\n")
		b.WriteString(hint)
	}

	if env.Context != "" {
		b.WriteString("\n\nLesson context: ")
		b.WriteString(env.Context)
	}
	if len(env.Topics) > 0 {
		b.WriteString("\nLesson topics: ")
		b.WriteString(strings.Join(env.Topics, ", "))
	}

	if len(citations) > 0 {
		b.WriteString("\n\nReference material (cite by id when used):")
		for _, c := range citations {
			b.WriteString(fmt.Sprintf("\n[%s] %s", c.ID, c.Text))
		}
	}

	if history != "" {
		b.WriteString("\n\n")
		b.WriteString(history)
	}

	return b.String()
}
