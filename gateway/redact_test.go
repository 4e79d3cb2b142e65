package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactPII_Email(t *testing.T) {
	out := RedactPII("write to me at kid.name+fun@school-mail.org please")
	assert.Equal(t, "write to me at [email removed] please", out)
}

func TestRedactPII_Phone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"call me on 555-123-4567 ok", "call me on [phone removed] ok"},
		{"my number is +44 20 7946 0958", "my number is [phone removed]"},
		{"it needs (555) 123-4567 now", "it needs [phone removed] now"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RedactPII(tc.in), tc.in)
	}
}

func TestRedactPII_KeepsOrdinaryNumbers(t *testing.T) {
	cases := []string{
		"move the sprite to x 240 and y 180",
		"my score is 12500",
		"repeat 10 times then wait 2 seconds",
	}
	for _, in := range cases {
		assert.Equal(t, in, RedactPII(in), in)
	}
}

func TestRedactPII_MultipleMatches(t *testing.T) {
	out := RedactPII("a@b.co and c@d.co")
	assert.Equal(t, "[email removed] and [email removed]", out)
}

func TestCapMessage(t *testing.T) {
	out, truncated := CapMessage("hello world", 5)
	assert.Equal(t, "hello", out)
	assert.True(t, truncated)

	out, truncated = CapMessage("short", 100)
	assert.Equal(t, "short", out)
	assert.False(t, truncated)

	out, truncated = CapMessage("anything at all", 0)
	assert.Equal(t, "anything at all", out)
	assert.False(t, truncated)
}
