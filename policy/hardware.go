package policy

import "strings"

// Hardware triage scripts. Physical-debugging guidance must not depend on a
// possibly-unavailable model, so each script is a fixed, single-step check
// selected purely by keyword priority.
const (
	triageJumper = "Let's check the jumper wire first. Unplug the jumper (the " +
		"cheeseteroid piece) from the breadboard, look at both ends for bent pins, " +
		"and push it firmly back into the same holes. Then try that one input again " +
		"and tell me what happens."

	triageAllButtons = "If every button stopped responding at once, the shared " +
		"ground wire is the usual cause. Find the black wire that runs from the " +
		"GND pin to the breadboard rail, unplug it, and plug it back in firmly. " +
		"Then press any one button and tell me what happens."

	triageDirection = "Let's test just that one direction. Follow its wire from " +
		"the button to the pin, unplug that single wire, and move it one row over " +
		"on the breadboard so it gets a fresh connection. Then press that button " +
		"again and tell me what happens."

	triageMission = "Sometimes the mission gets out of sync with the hardware. " +
		"Back out to the mission select screen, re-enter the current step, and " +
		"wait for the wiring picture to load fully before pressing anything. Then " +
		"try the step once more and tell me what happens."

	triageGeneric = "Let's test one input at a time. Pick a single button, press " +
		"and hold it for a second, and watch the screen for any reaction. Tell me " +
		"which button you tried and what you saw."
)

// hardwareNouns and failureWords together recognize hardware-failure
// phrasing: the message must mention a physical part and a failure.
var hardwareNouns = []string{
	"button", "wire", "jumper", "breadboard", "piperbot", "controls",
	"cheeseteroid", "gpio", "pin",
}

var failureWords = []string{
	"not working", "doesn't work", "does not work", "won't", "wont",
	"stopped", "broken", "nothing happens", "no response", "won't respond",
	"doesn't respond", "stuck",
}

// IsHardwareFailure reports whether the message matches hardware-failure
// phrasing: a hardware noun together with a failure word.
func IsHardwareFailure(message string) bool {
	return matchesAny(message, hardwareNouns) && matchesAny(message, failureWords)
}

// HardwareTriage picks the triage script for a hardware-failure message.
// Priority: jumper/cheeseteroid, then all-buttons, then a single direction,
// then mission/step wording, then the generic single-input check. The
// orchestrator gates this on a hardware context and an empty citation set.
func HardwareTriage(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "jumper") || strings.Contains(lower, "cheeseteroid"):
		return triageJumper

	case (strings.Contains(lower, "all") || strings.Contains(lower, "none")) &&
		strings.Contains(lower, "button"):
		return triageAllButtons

	case strings.Contains(lower, "up") || strings.Contains(lower, "down") ||
		strings.Contains(lower, "left") || strings.Contains(lower, "right"):
		return triageDirection

	case strings.Contains(lower, "mission") || strings.Contains(lower, "step") ||
		strings.Contains(lower, "level"):
		return triageMission

	default:
		return triageGeneric
	}
}
