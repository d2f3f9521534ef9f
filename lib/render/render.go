// Package render turns abstract challenge descriptions into the concrete
// assets a browser can show: PNG images for color and image challenges, WAV
// clips for audio ones. Rendering happens server side, before the solution
// is stripped, so renderers may read the solution to place markers.
//
// Rendering is deterministic for a given challenge and seed. A render
// failure is never fatal to the caller; the generator substitutes a plain
// text challenge instead.
package render

import (
	"errors"
	"fmt"

	"github.com/darkglass/darkglass/lib/captcha"
)

// ErrUnsupportedKind means the renderer has no idea what to do with the
// challenge and the caller should degrade.
var ErrUnsupportedKind = errors.New("render: unsupported challenge kind")

// Error wraps a render failure with the challenge it happened on.
type Error struct {
	CaptchaID string
	Kind      captcha.Kind
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render: can't render %s challenge %s: %v", e.Kind, e.CaptchaID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Renderer produces the replacement UI data for a challenge. The input
// challenge is not modified.
type Renderer interface {
	Render(ch *captcha.Challenge, seed int64) (map[string]any, error)
}

// Visual is the standard renderer.
type Visual struct{}

func (v Visual) Render(ch *captcha.Challenge, seed int64) (map[string]any, error) {
	ui, err := v.render(ch, seed)
	if err != nil {
		return nil, &Error{CaptchaID: ch.ID, Kind: ch.Kind, Err: err}
	}
	return ui, nil
}

func (v Visual) render(ch *captcha.Challenge, seed int64) (map[string]any, error) {
	switch ch.Kind {
	case captcha.KindText, captcha.KindMath:
		// Plain text challenges render themselves.
		return ch.CloneUIData(), nil
	case captcha.KindPattern:
		return renderPattern(ch)
	case captcha.KindColor:
		return renderColor(ch, seed)
	case captcha.KindImage:
		return renderImage(ch, seed)
	case captcha.KindAudio:
		return renderAudio(ch)
	default:
		return nil, ErrUnsupportedKind
	}
}

// renderPattern leaves the shapes alone (the solution indexes into them) and
// fills in a missing hint from the solution sequence, which remote oracles
// tend to omit.
func renderPattern(ch *captcha.Challenge) (map[string]any, error) {
	ui := ch.CloneUIData()

	shapes, ok := stringSlice(ui["shapes"])
	if !ok || len(shapes) == 0 {
		return nil, errors.New("pattern challenge has no shapes")
	}

	if _, ok := ui["hint"].(string); ok {
		return ui, nil
	}

	seq, ok := intSequence(ch.Solution["sequence"])
	if !ok {
		return nil, errors.New("pattern challenge has no solution sequence to hint from")
	}

	hint := ""
	for i, idx := range seq {
		if idx < 0 || idx >= len(shapes) {
			return nil, fmt.Errorf("solution index %d is out of range for %d shapes", idx, len(shapes))
		}
		if i > 0 {
			hint += " "
		}
		hint += shapes[idx]
	}
	ui["hint"] = hint

	return ui, nil
}

func stringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, elem := range t {
			s, ok := elem.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func intSequence(v any) ([]int, bool) {
	switch t := v.(type) {
	case []int:
		return t, true
	case []any:
		out := make([]int, 0, len(t))
		for _, elem := range t {
			switch n := elem.(type) {
			case float64:
				out = append(out, int(n))
			case int:
				out = append(out, n)
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}
