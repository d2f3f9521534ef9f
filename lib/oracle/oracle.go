// Package oracle decides what challenges look like and whether answers to
// them are correct. The remote implementation asks a generative model; the
// local one is deterministic and self-contained. Production composes the
// two with WithFallback so a broken or absent remote never takes the
// service down.
package oracle

import (
	"context"

	"github.com/darkglass/darkglass/lib/captcha"
)

// Verdict is the oracle's judgement of a user answer. OK reports whether
// judging itself worked; Correct is only meaningful when OK is true.
type Verdict struct {
	OK               bool   `json:"ok"`
	Correct          bool   `json:"correct"`
	Explanation      string `json:"explanation,omitempty"`
	NormalizedAnswer any    `json:"normalized_answer,omitempty"`
}

// Interface is implemented by anything that can mint challenges and judge
// answers against them.
type Interface interface {
	// Generate produces one challenge for the given session.
	Generate(ctx context.Context, sessionID string) (*captcha.Challenge, error)

	// Judge decides whether answer solves the challenge. Implementations
	// must not panic past this boundary; internal failures surface as a
	// Verdict with OK set to false.
	Judge(ctx context.Context, ch *captcha.Challenge, answer any) (Verdict, error)
}
