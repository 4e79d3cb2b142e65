package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		message string
		want    Intent
	}{
		{"My sprite doesn't work when I press the flag", IntentDebug},
		{"I got an error in my project", IntentDebug},
		{"What is a variable?", IntentConcept},
		{"Explain how broadcasting works", IntentConcept},
		{"How do I make a maze game?", IntentStrategy},
		{"Where do I start with my animation?", IntentStrategy},
		{"Can you review my project and give feedback?", IntentReflection},
		{"Am I done with this lesson?", IntentStatus},
		{"Tell me about dinosaurs", IntentGeneral},
		{"", IntentGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.message))
		})
	}
}

func TestClassifyIntent_DebugBeatsStrategy(t *testing.T) {
	// A message matching both debug and strategy phrases tags as debug.
	assert.Equal(t, IntentDebug, ClassifyIntent("How do I fix my sprite? It's broken"))
}

func TestContainsTextLanguage(t *testing.T) {
	assert.True(t, ContainsTextLanguage("Can I do this in Python?"))
	assert.True(t, ContainsTextLanguage("what about javascript instead"))
	assert.False(t, ContainsTextLanguage("How do I move a sprite?"))
}

func TestIsScratchContext(t *testing.T) {
	assert.True(t, IsScratchContext("Lesson 3: Scratch loops", nil))
	assert.True(t, IsScratchContext("", []string{"sprites", "motion"}))
	assert.False(t, IsScratchContext("Intro to robotics", []string{"wiring"}))
}

func TestIsPiperContext(t *testing.T) {
	assert.True(t, IsPiperContext("PiperBot story mode", nil))
	assert.True(t, IsPiperContext("", []string{"breadboard wiring"}))
	assert.False(t, IsPiperContext("Scratch animation", nil))
}

func TestIsHardwareFailure(t *testing.T) {
	assert.True(t, IsHardwareFailure("my button is not working"))
	assert.True(t, IsHardwareFailure("the jumper wire stopped doing anything"))
	assert.False(t, IsHardwareFailure("the button is blue"), "noun without failure word")
	assert.False(t, IsHardwareFailure("my story is not working"), "failure word without hardware noun")
}

func TestHardwareTriage_Priority(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"jumper wins over direction", "the jumper for the up button is broken", triageJumper},
		{"cheeseteroid maps to jumper", "my cheeseteroid fell out and nothing works", triageJumper},
		{"all buttons", "all of my buttons stopped working", triageAllButtons},
		{"none of the buttons", "none of the buttons do anything", triageAllButtons},
		{"single direction", "the left button does nothing", triageDirection},
		{"mission wording", "my piperbot is frozen on this mission", triageMission},
		{"generic fallback", "the controls seem dead", triageGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HardwareTriage(tt.message))
		})
	}
}

func TestAllowedTopicOverlap(t *testing.T) {
	assert.True(t, AllowedTopicOverlap("anything at all", nil), "empty allow-list is unrestricted")
	assert.True(t, AllowedTopicOverlap("how do loops work?", []string{"loops", "events"}))
	assert.False(t, AllowedTopicOverlap("tell me about dinosaurs", []string{"loops", "events"}))
}

func TestBuildFollowUpSuggestions(t *testing.T) {
	got := BuildFollowUpSuggestions(IntentDebug, "", nil, nil, "", 2)
	assert.Len(t, got, 2)
	assert.Contains(t, got[0], "isolating one change")

	got = BuildFollowUpSuggestions(IntentGeneral, "lesson", []string{"loops"}, nil, "", 3)
	assert.Len(t, got, 3)
	assert.Contains(t, got[2], "loops")

	assert.Nil(t, BuildFollowUpSuggestions(IntentDebug, "", nil, nil, "", 0))

	// Unknown intent falls back to the general pool.
	got = BuildFollowUpSuggestions(Intent("mystery"), "", nil, nil, "", 1)
	assert.Len(t, got, 1)
}

func TestLanguageRedirectMessageIsStable(t *testing.T) {
	assert.Contains(t, LanguageRedirectMessage, "block-based")
}
