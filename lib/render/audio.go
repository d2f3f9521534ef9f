package render

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math"
	"strings"

	"github.com/darkglass/darkglass/lib/captcha"
)

const (
	sampleRate = 8000
	toneLen    = sampleRate / 4 // 250ms per digit
	gapLen     = sampleRate / 10
)

// renderAudio synthesizes a WAV clip for digit challenges: each digit maps
// to a distinct sine tone, so the clip is solvable by ear without a speech
// stack. Word challenges keep their speech_text for the client's own
// text-to-speech.
func renderAudio(ch *captcha.Challenge) (map[string]any, error) {
	ui := ch.CloneUIData()

	digits, _ := ui["digits"].(string)
	if digits == "" {
		if _, ok := ui["speech_text"].(string); ok {
			return ui, nil
		}
		return nil, errors.New("audio challenge has neither digits nor speech_text")
	}

	var samples []int16
	for i, d := range strings.Fields(digits) {
		if i > 0 {
			samples = append(samples, make([]int16, gapLen)...)
		}
		if len(d) != 1 || d[0] < '0' || d[0] > '9' {
			return nil, errors.New("audio challenge digits are malformed")
		}
		samples = append(samples, tone(400+60*float64(d[0]-'0'))...)
	}

	ui["audio_base64"] = "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(wavBytes(samples))

	return ui, nil
}

func tone(freq float64) []int16 {
	out := make([]int16, toneLen)
	for i := range out {
		// Short attack/release ramps keep the clicks out.
		env := 1.0
		if i < sampleRate/100 {
			env = float64(i) / float64(sampleRate/100)
		} else if toneLen-i < sampleRate/100 {
			env = float64(toneLen-i) / float64(sampleRate/100)
		}
		out[i] = int16(env * 12000 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}
	return out
}

// wavBytes wraps mono 16-bit PCM samples in a minimal RIFF/WAVE container.
func wavBytes(samples []int16) []byte {
	dataLen := len(samples) * 2

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}
