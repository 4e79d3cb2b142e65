// Package reference loads curriculum reference material and selects the
// excerpts most relevant to a chat message. Citations ground tutoring
// responses in the material the lesson actually teaches.
package reference

// Chunk is one cleaned, length-bounded block of reference text. Chunks are
// derived once per file and never mutated after load.
type Chunk struct {
	Text string
}

// Citation is a ranked excerpt attached to a chat response. The text is the
// literal chunk content; no derived confidence value is ever attached.
type Citation struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}
