// Package captcha defines the challenge model shared by the oracle, the
// renderer, and the server core.
package captcha

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
)

var ErrUnknownKind = errors.New("captcha: unknown challenge kind")

// Kind enumerates the challenge families Darkglass can issue.
type Kind string

const (
	KindText    Kind = "text"
	KindMath    Kind = "math"
	KindPattern Kind = "pattern"
	KindImage   Kind = "image"
	KindAudio   Kind = "audio"
	KindColor   Kind = "color"
)

// Kinds lists every challenge kind in issue order.
var Kinds = []Kind{KindText, KindMath, KindPattern, KindImage, KindAudio, KindColor}

func (k Kind) Valid() error {
	switch k {
	case KindText, KindMath, KindPattern, KindImage, KindAudio, KindColor:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

// Challenge is one verification puzzle instance. UIData is what the client
// sees; Solution never leaves the server.
type Challenge struct {
	ID           string         `json:"captcha_id"`
	Kind         Kind           `json:"captcha_type"`
	Instructions string         `json:"instructions"`
	UIData       map[string]any `json:"ui_data"`
	Solution     map[string]any `json:"solution,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// NewID mints a short opaque challenge or session identifier: the first 12
// hex characters of a v4 UUID.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Canonical serializes the challenge with stable key ordering. The exact
// same routine backs both signing and verification; the round trip through
// a map forces encoding/json to sort every key, including the top level.
func (c *Challenge) Canonical() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("captcha: can't serialize challenge: %w", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("captcha: can't canonicalize challenge: %w", err)
	}

	return json.Marshal(flat)
}

// WithUIData returns a shallow copy of the challenge carrying the given UI
// payload. Used by the orchestrator to merge rendered media without
// mutating the oracle's output.
func (c *Challenge) WithUIData(ui map[string]any) *Challenge {
	out := *c
	out.UIData = ui
	return &out
}

// CloneUIData copies the UI payload so rendered fields never leak back into
// the original challenge.
func (c *Challenge) CloneUIData() map[string]any {
	if c.UIData == nil {
		return map[string]any{}
	}
	return maps.Clone(c.UIData)
}

// PublicView is the redacted shape returned to clients: everything needed
// to render and answer the challenge, nothing that gives the answer away.
type PublicView struct {
	ID           string         `json:"captcha_id"`
	Kind         Kind           `json:"captcha_type"`
	Instructions string         `json:"instructions"`
	UIData       map[string]any `json:"ui_data"`
	Signature    string         `json:"signature"`
}

// Redact strips the solution and metadata from a challenge and pairs the
// remainder with its signature.
func (c *Challenge) Redact(signature string) *PublicView {
	return &PublicView{
		ID:           c.ID,
		Kind:         c.Kind,
		Instructions: c.Instructions,
		UIData:       c.UIData,
		Signature:    signature,
	}
}
