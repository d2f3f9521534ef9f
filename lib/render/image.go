package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"

	"github.com/darkglass/darkglass/lib/captcha"
)

const (
	swatchWidth  = 240
	swatchHeight = 140

	canvasWidth  = 420
	canvasHeight = 200
)

var quotedWord = regexp.MustCompile(`["“]([^"”]+)["”]`)

// renderColor paints a noisy swatch of the challenge color and ships it as a
// data URI. The hex stays in the UI data for clients that prefer to draw
// their own swatch.
func renderColor(ch *captcha.Challenge, seed int64) (map[string]any, error) {
	ui := ch.CloneUIData()

	hex, _ := ui["color_hex"].(string)
	c, err := parseHexColor(hex)
	if err != nil {
		return nil, err
	}

	rnd := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, swatchWidth, swatchHeight))
	for y := 0; y < swatchHeight; y++ {
		for x := 0; x < swatchWidth; x++ {
			img.SetRGBA(x, y, jitter(rnd, c, 12))
		}
	}

	uri, err := pngDataURI(img)
	if err != nil {
		return nil, err
	}
	ui["image_base64"] = uri

	return ui, nil
}

// renderImage draws either a ring marker at the solution point or the quoted
// word from the description, on a noisy background in both cases.
func renderImage(ch *captcha.Challenge, seed int64) (map[string]any, error) {
	ui := ch.CloneUIData()

	rnd := rand.New(rand.NewSource(seed))
	img := noisyCanvas(rnd, canvasWidth, canvasHeight)

	if _, pointBased := ch.Solution["x"]; pointBased {
		x, okX := solutionInt(ch.Solution["x"])
		y, okY := solutionInt(ch.Solution["y"])
		if !okX || !okY {
			return nil, errors.New("image challenge has a malformed solution point")
		}
		tol, ok := solutionInt(ch.Solution["tolerance"])
		if !ok || tol <= 0 {
			tol = 18
		}
		drawRing(img, x, y, tol)
	} else {
		desc, _ := ui["description"].(string)
		m := quotedWord.FindStringSubmatch(desc)
		if m == nil {
			return nil, errors.New("image challenge description names no word to draw")
		}
		drawWord(img, m[1], rnd)
	}

	uri, err := pngDataURI(img)
	if err != nil {
		return nil, err
	}
	ui["image_base64"] = uri
	ui["width"] = canvasWidth
	ui["height"] = canvasHeight

	return ui, nil
}

func parseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("can't parse %q as a hex color", s)
	}

	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("can't parse %q as a hex color: %w", s, err)
	}

	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 255}, nil
}

func jitter(rnd *rand.Rand, c color.RGBA, amount int) color.RGBA {
	j := func(v uint8) uint8 {
		n := int(v) + rnd.Intn(2*amount+1) - amount
		return uint8(max(0, min(255, n)))
	}
	return color.RGBA{R: j(c.R), G: j(c.G), B: j(c.B), A: 255}
}

func noisyCanvas(rnd *rand.Rand, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	base := color.RGBA{R: 235, G: 235, B: 228, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, jitter(rnd, base, 18))
		}
	}

	// A few stray lines so OCR has to work for it.
	for range 6 {
		x1, y1 := rnd.Intn(w), rnd.Intn(h)
		x2, y2 := rnd.Intn(w), rnd.Intn(h)
		drawLine(img, x1, y1, x2, y2, color.RGBA{R: 180, G: 180, B: 180, A: 255})
	}

	return img
}

func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	steps := max(abs(x2-x1), abs(y2-y1))
	if steps == 0 {
		img.SetRGBA(x1, y1, c)
		return
	}
	for i := 0; i <= steps; i++ {
		x := x1 + (x2-x1)*i/steps
		y := y1 + (y2-y1)*i/steps
		img.SetRGBA(x, y, c)
	}
}

func drawRing(img *image.RGBA, cx, cy, radius int) {
	c := color.RGBA{R: 200, G: 30, B: 30, A: 255}
	for t := 0; t < 3; t++ {
		r := float64(radius + t)
		for step := 0; step < 3600; step++ {
			rad := float64(step) / 3600 * 2 * math.Pi
			x := cx + int(r*math.Cos(rad))
			y := cy + int(r*math.Sin(rad))
			if image.Pt(x, y).In(img.Bounds()) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

// drawWord renders the word with the bundled bitmap font at small size, then
// scales it up with a touch of positional jitter so the glyph grid doesn't
// line up across challenges.
func drawWord(img *image.RGBA, word string, rnd *rand.Rand) {
	face := inconsolata.Bold8x16
	small := image.NewRGBA(image.Rect(0, 0, canvasWidth/3, canvasHeight/3))

	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.RGBA{R: 40, G: 40, B: 60, A: 255}),
		Face: face,
	}
	adv := d.MeasureString(word)
	d.Dot = fixed.Point26_6{
		X: (fixed.I(small.Bounds().Dx()) - adv) / 2,
		Y: fixed.I(small.Bounds().Dy()/2 + 6),
	}
	d.DrawString(word)

	dx := rnd.Intn(9) - 4
	dy := rnd.Intn(9) - 4
	dst := image.Rect(dx, dy, canvasWidth+dx, canvasHeight+dy)
	xdraw.NearestNeighbor.Scale(img, dst, small, small.Bounds(), xdraw.Over, nil)
}

func pngDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("can't encode png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func solutionInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case float64:
		return int(t), true
	default:
		return 0, false
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
