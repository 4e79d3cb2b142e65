// Package scope verifies the signed context envelope constraining what a
// tutoring conversation may discuss. Verification fails closed: a student
// request without a valid envelope never reaches a backend.
package scope

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Token verification errors. Callers distinguish an expired signature from a
// tampered or malformed one because the user-facing guidance differs.
var (
	ErrTokenExpired = errors.New("scope token expired")
	ErrTokenInvalid = errors.New("scope token invalid")
)

// Payload is the signed content of a scope token. It is produced by the
// curriculum service when a lesson page loads and verified here per request.
type Payload struct {
	// Context is the free-text lesson description.
	Context string `json:"context,omitempty"`

	// Topics are the lesson topics, in curriculum order.
	Topics []string `json:"topics,omitempty"`

	// AllowedTopics restricts the conversation when non-empty.
	AllowedTopics []string `json:"allowed_topics,omitempty"`

	// ReferenceKey selects the reference material for citations.
	ReferenceKey string `json:"reference,omitempty"`

	// ClassID ties the conversation to a class for bulk reset, when known.
	ClassID int `json:"class_id,omitempty"`
}

// Codec signs and verifies timestamped scope tokens.
//
// Token format: base64url(payload JSON) "." base64url(unix seconds) "."
// base64url(HMAC-SHA256 over the first two parts). The signature covers the
// timestamp, so age checking is tamper-proof.
type Codec struct {
	secret []byte

	// now is overridable for tests.
	now func() time.Time
}

// NewCodec creates a codec for the given signing secret.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// SetClock overrides the time source. Test helper.
func (c *Codec) SetClock(now func() time.Time) {
	c.now = now
}

var b64 = base64.RawURLEncoding

// Sign produces a signed token for payload, timestamped at the current time.
func (c *Codec) Sign(p Payload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(c.now().Unix()))

	signed := b64.EncodeToString(body) + "." + b64.EncodeToString(ts[:])
	return signed + "." + b64.EncodeToString(c.sign(signed)), nil
}

// Verify checks the token signature and age, returning the payload on
// success. A valid signature past maxAge fails with ErrTokenExpired; any
// other defect fails with ErrTokenInvalid.
func (c *Codec) Verify(token string, maxAge time.Duration) (Payload, error) {
	var p Payload

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return p, fmt.Errorf("%w: malformed", ErrTokenInvalid)
	}

	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return p, fmt.Errorf("%w: malformed signature", ErrTokenInvalid)
	}
	if !hmac.Equal(sig, c.sign(parts[0]+"."+parts[1])) {
		return p, fmt.Errorf("%w: bad signature", ErrTokenInvalid)
	}

	tsBytes, err := b64.DecodeString(parts[1])
	if err != nil || len(tsBytes) != 8 {
		return p, fmt.Errorf("%w: malformed timestamp", ErrTokenInvalid)
	}
	issuedAt := time.Unix(int64(binary.BigEndian.Uint64(tsBytes)), 0)
	if maxAge > 0 && c.now().Sub(issuedAt) > maxAge {
		return p, fmt.Errorf("%w: issued %s ago", ErrTokenExpired, c.now().Sub(issuedAt).Round(time.Second))
	}

	body, err := b64.DecodeString(parts[0])
	if err != nil {
		return p, fmt.Errorf("%w: malformed payload", ErrTokenInvalid)
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("%w: payload not JSON", ErrTokenInvalid)
	}

	return p, nil
}

func (c *Codec) sign(data string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(data))
	return mac.Sum(nil)
}

// Fingerprint derives a stable identifier from a raw token without storing
// the token itself. It isolates conversation history by curriculum context.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", sum[:8])
}
