package policy

import "strings"

// textLanguageKeywords are text-programming terms a block-based curriculum
// never needs. A match triggers the language redirect when the active
// context is block-based.
var textLanguageKeywords = []string{
	"python", "javascript", "typescript", "java ", "java.", "c++", "c#",
	"html", "css", "sql", "ruby", "golang", "swift", "kotlin",
	"def ", "import ", "console.log", "print(",
}

// scratchKeywords identify a Scratch (block-based) lesson context.
var scratchKeywords = []string{
	"scratch", "sprite", "block", "stage", "costume", "backdrop", "broadcast",
}

// piperKeywords identify the hardware-enabled curriculum context.
var piperKeywords = []string{
	"piper", "piperbot", "breadboard", "jumper", "gpio", "story mode",
	"storymode", "raspberry pi",
}

// LanguageRedirectMessage is the fixed response for text-language questions
// inside a block-based lesson. Deterministic so it costs no backend call.
const LanguageRedirectMessage = "This lesson uses block-based coding, so text languages like Python " +
	"aren't part of it. Let's stick with the blocks for now — try describing what " +
	"you want your project to do, and I can help you build it with the blocks in this lesson."

// ContainsTextLanguage reports whether the message references a text
// programming language.
func ContainsTextLanguage(message string) bool {
	return matchesAny(message, textLanguageKeywords)
}

// IsScratchContext reports whether the lesson context or topics describe a
// block-based Scratch environment.
func IsScratchContext(context string, topics []string) bool {
	return matchesAny(context+" "+strings.Join(topics, " "), scratchKeywords)
}

// IsPiperContext reports whether the lesson context or topics describe the
// hardware-enabled curriculum.
func IsPiperContext(context string, topics []string) bool {
	return matchesAny(context+" "+strings.Join(topics, " "), piperKeywords)
}

func matchesAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
