package backend

import (
	"context"
	"fmt"
	"strings"
)

// Stub is a deterministic backend for tests and offline development. It
// echoes a short acknowledgement derived from the message, never errors, and
// never touches the network.
type Stub struct {
	name string
}

// NewStub creates a stub backend.
func NewStub(name string) *Stub {
	return &Stub{name: name}
}

// Name returns the registry name of this backend.
func (s *Stub) Name() string {
	return s.name
}

// Chat produces a fixed-form response from the message content.
func (s *Stub) Chat(_ context.Context, _ string, message string) (string, string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "What would you like to work on?", "stub", nil
	}

	excerpt := message
	if len(excerpt) > 80 {
		excerpt = excerpt[:80]
	}
	return fmt.Sprintf("Let's think about that together. You asked: %q. What have you tried so far?", excerpt), "stub", nil
}
