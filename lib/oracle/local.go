package oracle

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/darkglass/darkglass/lib/captcha"
)

var syllables = []string{"sol", "ra", "pix", "tor", "len", "mar", "kai", "zen", "net", "mono", "tri", "qua"}

var shapePool = []string{"▲", "●", "◆", "■", "★", "✦", "⬟", "⬢", "◯", "▣", "△"}

type namedColor struct {
	name string
	r    int
	g    int
	b    int
}

var palette = []namedColor{
	{"red", 220, 20, 60},
	{"green", 34, 139, 34},
	{"blue", 30, 144, 255},
	{"yellow", 255, 215, 0},
	{"purple", 138, 43, 226},
	{"orange", 255, 140, 0},
	{"pink", 255, 105, 180},
	{"teal", 0, 128, 128},
	{"brown", 139, 69, 19},
	{"black", 20, 20, 20},
	{"white", 245, 245, 245},
}

// Local generates and judges challenges without any external help. It is
// used directly in air-gapped deployments and as the safety net behind the
// remote oracle everywhere else.
type Local struct {
	// Kinds restricts what Generate may produce. Empty means all of them.
	Kinds []captcha.Kind

	// SeedFor derives the generation seed for a session, swappable in tests
	// for reproducible output. The default is crypto-free randomness; the
	// signature on the resulting challenge is what carries the integrity.
	SeedFor func(sessionID string) int64
}

func (l *Local) seed(sessionID string) int64 {
	if l.SeedFor != nil {
		return l.SeedFor(sessionID)
	}
	return rand.Int63()
}

func (l *Local) kinds() []captcha.Kind {
	if len(l.Kinds) != 0 {
		return l.Kinds
	}
	return captcha.Kinds
}

// Generate builds a deterministic challenge from a per-session seed. The
// seed is recorded in the metadata so a bug report can be replayed exactly.
func (l *Local) Generate(ctx context.Context, sessionID string) (*captcha.Challenge, error) {
	seed := l.seed(sessionID)
	rnd := rand.New(rand.NewSource(seed))

	kinds := l.kinds()
	ch := l.GenerateKind(rnd, kinds[rnd.Intn(len(kinds))])
	ch.Metadata = map[string]any{
		"generated_by": "local_fallback",
		"seed":         seed,
	}

	return ch, nil
}

// GenerateKind builds one challenge of the given kind from rnd. Callers that
// need the replay metadata should go through Generate instead.
func (l *Local) GenerateKind(rnd *rand.Rand, kind captcha.Kind) *captcha.Challenge {
	ch := &captcha.Challenge{
		ID:   captcha.NewID(),
		Kind: kind,
	}

	switch kind {
	case captcha.KindText:
		word := randomWord(rnd, 6)
		ch.Instructions = "Type the word exactly as shown."
		ch.UIData = map[string]any{"display_text": word}
		ch.Solution = map[string]any{"value": word}
	case captcha.KindMath:
		a := 2 + rnd.Intn(17)
		b := 1 + rnd.Intn(12)
		var result int
		var op string
		switch rnd.Intn(3) {
		case 0:
			op, result = "+", a+b
		case 1:
			op, result = "-", a-b
		default:
			op, result = "*", a*b
		}
		ch.Instructions = "Solve the arithmetic problem."
		ch.UIData = map[string]any{"display_text": fmt.Sprintf("%d %s %d = ?", a, op, b)}
		ch.Solution = map[string]any{"value": strconv.Itoa(result)}
	case captcha.KindPattern:
		pool := append([]string(nil), shapePool...)
		rnd.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		count := 4 + rnd.Intn(4)
		shapes := pool[:count]

		seqLen := 3 + rnd.Intn(min(6, count)-3+1)
		seq := rnd.Perm(count)[:seqLen]

		ch.Instructions = "Click the shapes in the order shown in the hint."
		ch.UIData = map[string]any{
			"shapes": shapes,
			"hint":   hintFor(shapes, seq),
		}
		ch.Solution = map[string]any{"sequence": seq}
	case captcha.KindImage:
		if rnd.Float64() < 0.45 {
			x := 40 + rnd.Intn(341)
			y := 30 + rnd.Intn(141)
			tol := 12 + rnd.Intn(17)
			ch.Instructions = "Click the marked spot in the image."
			ch.UIData = map[string]any{
				"description": "Click the circled marker.",
			}
			ch.Solution = map[string]any{"x": x, "y": y, "tolerance": tol}
		} else {
			word := randomWord(rnd, 5)
			ch.Instructions = "Type the word rendered in the image."
			ch.UIData = map[string]any{
				"description": fmt.Sprintf("The image shows the word %q on a noisy background.", word),
			}
			ch.Solution = map[string]any{"value": word}
		}
	case captcha.KindAudio:
		if rnd.Float64() < 0.5 {
			word := randomWord(rnd, 4)
			ch.Instructions = "Listen to the clip and type what you hear."
			ch.UIData = map[string]any{"speech_text": "Please type the word " + word}
			ch.Solution = map[string]any{"value": word}
		} else {
			n := 2 + rnd.Intn(3)
			digits := make([]string, n)
			for i := range digits {
				digits[i] = strconv.Itoa(2 + rnd.Intn(8))
			}
			spoken := strings.Join(digits, " ")
			ch.Instructions = "Listen to the digits and type them in order, separated by spaces."
			ch.UIData = map[string]any{"digits": spoken}
			ch.Solution = map[string]any{"value": spoken}
		}
	case captcha.KindColor:
		c := palette[rnd.Intn(len(palette))]
		ch.Instructions = "Name the color of the swatch."
		ch.UIData = map[string]any{
			"color_hex": fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b),
		}
		ch.Solution = map[string]any{"value": c.name}
	default:
		// Unknown kinds degrade to text rather than failing generation.
		return l.GenerateKind(rnd, captcha.KindText)
	}

	return ch
}

// randomWord glues syllables together to a target length of 3..maxLen runes
// and sometimes tacks on a two digit suffix.
func randomWord(rnd *rand.Rand, maxLen int) string {
	target := 3 + rnd.Intn(maxLen-3+1)

	var sb strings.Builder
	for sb.Len() < target {
		sb.WriteString(syllables[rnd.Intn(len(syllables))])
	}
	word := sb.String()[:target]

	if rnd.Float64() < 0.25 {
		word += strconv.Itoa(2 + rnd.Intn(98))
	}

	return word
}

func hintFor(shapes []string, seq []int) string {
	parts := make([]string, len(seq))
	for i, idx := range seq {
		parts[i] = shapes[idx]
	}
	return strings.Join(parts, " ")
}

// Judge checks answer against the stored solution with per-kind heuristics.
// It never returns a non-nil error: anything that goes wrong inside a
// heuristic comes back as a Verdict with OK unset, which the caller maps to
// "verification unavailable" rather than "incorrect".
func (l *Local) Judge(ctx context.Context, ch *captcha.Challenge, answer any) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			v = Verdict{Explanation: fmt.Sprintf("fallback-judge-panic: %v", r)}
		}
	}()

	switch ch.Kind {
	case captcha.KindText, captcha.KindMath, captcha.KindAudio:
		want := normalize(ch.Solution["value"])
		got := normalize(answer)
		return Verdict{
			OK:               true,
			Correct:          want != "" && want == got,
			Explanation:      "fallback-exact-compare",
			NormalizedAnswer: got,
		}, nil
	case captcha.KindPattern:
		want, ok := intSlice(ch.Solution["sequence"])
		if !ok {
			return Verdict{Explanation: "fallback-missing-sequence"}, nil
		}
		got, ok := intSlice(answer)
		return Verdict{
			OK:               true,
			Correct:          ok && intsEqual(want, got),
			Explanation:      "fallback-sequence-compare",
			NormalizedAnswer: got,
		}, nil
	case captcha.KindImage:
		if _, pointBased := ch.Solution["x"]; pointBased {
			return judgePoint(ch, answer), nil
		}
		want := normalize(ch.Solution["value"])
		got := normalize(answer)
		return Verdict{
			OK:               true,
			Correct:          want != "" && want == got,
			Explanation:      "fallback-image-word-compare",
			NormalizedAnswer: got,
		}, nil
	case captcha.KindColor:
		want := normalize(ch.Solution["value"])
		got := normalize(answer)
		correct := want != "" && want == got
		if !correct && strings.HasPrefix(want, "#") {
			correct = strings.TrimPrefix(want, "#") == strings.TrimPrefix(got, "#")
		}
		return Verdict{
			OK:               true,
			Correct:          correct,
			Explanation:      "fallback-color-compare",
			NormalizedAnswer: got,
		}, nil
	default:
		return Verdict{Explanation: "unsupported-type-fallback"}, nil
	}
}

func judgePoint(ch *captcha.Challenge, answer any) Verdict {
	tx, okX := toFloat(ch.Solution["x"])
	ty, okY := toFloat(ch.Solution["y"])
	if !okX || !okY {
		return Verdict{Explanation: "fallback-missing-point"}
	}

	tol, ok := toFloat(ch.Solution["tolerance"])
	if !ok || tol <= 0 {
		tol = 18
	}

	ux, uy, ok := pointFrom(answer)
	if !ok {
		return Verdict{
			OK:          true,
			Explanation: "fallback-point",
		}
	}

	dist := math.Hypot(ux-tx, uy-ty)
	return Verdict{
		OK:               true,
		Correct:          dist <= tol,
		Explanation:      "fallback-point",
		NormalizedAnswer: map[string]any{"distance": dist},
	}
}

// normalize flattens the answer to a trimmed lowercase string. Numbers pass
// through strconv so a JSON 14 and the string "14" compare equal.
func normalize(v any) string {
	var s string
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprintf("%v", t)
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// intSlice coerces the decoded-JSON shapes a sequence answer can take:
// []int straight from a generator, []any off the wire, or a comma separated
// string typed by a human.
func intSlice(v any) ([]int, bool) {
	switch t := v.(type) {
	case []int:
		return t, true
	case []any:
		out := make([]int, 0, len(t))
		for _, elem := range t {
			f, ok := toFloat(elem)
			if !ok {
				return nil, false
			}
			out = append(out, int(f))
		}
		return out, true
	case string:
		if !strings.Contains(t, ",") {
			return nil, false
		}
		parts := strings.Split(t, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, false
			}
			out = append(out, n)
		}
		return out, true
	default:
		return nil, false
	}
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// pointFrom accepts {"x":..,"y":..} objects or two element arrays.
func pointFrom(v any) (x, y float64, ok bool) {
	switch t := v.(type) {
	case map[string]any:
		x, okX := toFloat(t["x"])
		y, okY := toFloat(t["y"])
		return x, y, okX && okY
	case []any:
		if len(t) < 2 {
			return 0, 0, false
		}
		x, okX := toFloat(t[0])
		y, okY := toFloat(t[1])
		return x, y, okX && okY
	default:
		return 0, 0, false
	}
}
