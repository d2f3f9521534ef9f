package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/darkglass/darkglass"
	"github.com/darkglass/darkglass/lib/captcha"
)

var (
	// ErrNotConfigured means the remote oracle has no endpoint or token and
	// can never succeed. Callers treat it the same as any transient failure.
	ErrNotConfigured = errors.New("oracle: remote oracle is not configured")

	// ErrBadResponse means the model replied but no JSON object could be
	// recovered from the reply.
	ErrBadResponse = errors.New("oracle: can't extract JSON from model response")
)

const generatePrompt = `Design one CAPTCHA challenge for a human visitor.
Pick a captcha_type from: text, math, pattern, image, audio, color.
Reply with a single JSON object with keys: captcha_id, captcha_type,
instructions, ui_data, solution. The solution must be machine-checkable.
Reply with JSON only, no commentary.`

const judgePromptFormat = `A visitor answered a CAPTCHA challenge.
Challenge (including the stored solution): %s
Visitor answer: %s
Decide whether the answer solves the challenge, tolerating case and
whitespace differences. Reply with a single JSON object with keys:
correct (boolean), explanation (string), normalized_answer.
Reply with JSON only, no commentary.`

// Remote asks a generative model, over plain HTTP, to design challenges and
// to judge answers. One attempt per call, no retries: the caller wraps this
// in a Fallback and a slow retry loop would only hold the visitor hostage.
type Remote struct {
	Endpoint string
	Token    string

	// Client is the HTTP client to use; per-call deadlines come from the
	// timeouts below, not from Client.Timeout.
	Client *http.Client

	GenerateTimeout time.Duration
	JudgeTimeout    time.Duration
}

// NewRemote builds a Remote with the default timeouts. An empty endpoint or
// token yields a client whose every call fails with ErrNotConfigured.
func NewRemote(endpoint, token string) *Remote {
	return &Remote{
		Endpoint:        endpoint,
		Token:           token,
		Client:          http.DefaultClient,
		GenerateTimeout: darkglass.OracleGenerateTimeout,
		JudgeTimeout:    darkglass.OracleJudgeTimeout,
	}
}

// Configured reports whether the remote oracle can be called at all.
func (r *Remote) Configured() bool {
	return r.Endpoint != "" && r.Token != ""
}

func (r *Remote) Generate(ctx context.Context, sessionID string) (*captcha.Challenge, error) {
	raw, err := r.post(ctx, generatePrompt, 512, r.GenerateTimeout)
	if err != nil {
		return nil, err
	}

	data, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}

	var ch captcha.Challenge
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("oracle: can't parse generated challenge: %w", err)
	}

	// The model is allowed to be sloppy about identity and kind; everything
	// else it must get right.
	if ch.ID == "" {
		ch.ID = captcha.NewID()
	}
	if ch.Kind.Valid() != nil {
		ch.Kind = captcha.KindText
	}
	if ch.Instructions == "" || len(ch.Solution) == 0 {
		return nil, fmt.Errorf("%w: challenge is missing instructions or solution", ErrBadResponse)
	}

	if ch.Metadata == nil {
		ch.Metadata = map[string]any{}
	}
	ch.Metadata["generated_by"] = "remote_oracle"

	return &ch, nil
}

func (r *Remote) Judge(ctx context.Context, ch *captcha.Challenge, answer any) (Verdict, error) {
	chJSON, err := json.Marshal(ch)
	if err != nil {
		return Verdict{}, fmt.Errorf("oracle: can't encode challenge for judging: %w", err)
	}
	ansJSON, err := json.Marshal(answer)
	if err != nil {
		return Verdict{}, fmt.Errorf("oracle: can't encode answer for judging: %w", err)
	}

	raw, err := r.post(ctx, fmt.Sprintf(judgePromptFormat, chJSON, ansJSON), 256, r.JudgeTimeout)
	if err != nil {
		return Verdict{}, err
	}

	data, err := ExtractJSON(raw)
	if err != nil {
		return Verdict{}, err
	}

	var parsed struct {
		Correct          bool   `json:"correct"`
		Explanation      string `json:"explanation"`
		NormalizedAnswer any    `json:"normalized_answer"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Verdict{}, fmt.Errorf("oracle: can't parse verdict: %w", err)
	}

	return Verdict{
		OK:               true,
		Correct:          parsed.Correct,
		Explanation:      parsed.Explanation,
		NormalizedAnswer: parsed.NormalizedAnswer,
	}, nil
}

func (r *Remote) post(ctx context.Context, prompt string, maxTokens int, timeout time.Duration) (string, error) {
	if !r.Configured() {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(map[string]any{
		"prompt":            prompt,
		"max_output_tokens": maxTokens,
		"temperature":       0.7,
	})
	if err != nil {
		return "", fmt.Errorf("oracle: can't encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("oracle: can't build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.Token)

	cli := r.Client
	if cli == nil {
		cli = http.DefaultClient
	}

	resp, err := cli.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle: unexpected status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("oracle: can't read response: %w", err)
	}

	return string(data), nil
}

// ExtractJSON recovers the JSON object embedded in a model reply. Models
// routinely wrap their output in prose or markdown fences, so when the raw
// text isn't valid JSON this slices from the first "{" to the last "}" and
// tries that.
func ExtractJSON(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), nil
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, ErrBadResponse
	}

	candidate := []byte(raw[start : end+1])
	if !json.Valid(candidate) {
		return nil, ErrBadResponse
	}

	return candidate, nil
}
