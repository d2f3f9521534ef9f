package lib

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/darkglass/darkglass/internal"
	"github.com/darkglass/darkglass/lib/captcha"
	"github.com/darkglass/darkglass/lib/session"
)

// CreateSession mints a new verification session and returns its id.
func (s *Server) CreateSession(ctx context.Context) (string, error) {
	return s.sessions.Create(ctx)
}

// Issue generates a fresh challenge for the session, renders its media,
// signs the result and installs it as the session's active challenge,
// resetting the attempt counters. The previous active challenge, solved or
// not, is gone after this.
//
// Issue does not fail for oracle or renderer problems; both degrade to a
// locally built text challenge. The only errors are an unknown session and
// storage trouble.
func (s *Server) Issue(ctx context.Context, sessionID string) (*captcha.PublicView, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	ch, err := s.oracle.Generate(ctx, sessionID)
	if err != nil {
		// Only possible with an injected oracle that has no fallback.
		slog.Error("oracle failed with no fallback, issuing text challenge", "sessionID", sessionID, "err", err)
		ch = s.fallbackChallenge(err)
	}

	source, _ := ch.Metadata["generated_by"].(string)
	if source == "" {
		source = "unknown"
	}

	ui, err := s.renderer.Render(ch, internal.Seed(ch.ID))
	if err != nil {
		slog.Warn("challenge rendering failed, issuing text challenge", "sessionID", sessionID, "captchaID", ch.ID, "kind", ch.Kind, "err", err)
		renderFallbacks.Inc()
		ch = s.fallbackChallenge(err)
		ui = ch.UIData
	}
	ch = ch.WithUIData(ui)

	payload, err := ch.Canonical()
	if err != nil {
		return nil, fmt.Errorf("lib: can't canonicalize challenge: %w", err)
	}
	sig := s.sig.Sign(sessionID, payload)
	slog.Debug("challenge signed", "sessionID", sessionID, "captchaID", ch.ID, "kind", ch.Kind, "payloadHash", internal.FastHash(string(payload)))

	now := s.now()
	err = s.sessions.Update(ctx, sessionID, func(sess *session.Session) {
		sess.Captcha = &session.ActiveChallenge{
			Challenge: *ch,
			Signature: sig,
			CreatedAt: now,
		}
		sess.Attempts = 0
		sess.LastAttempt = session.NoAttempt
		sess.GenerationCount++
	})
	if err != nil {
		return nil, err
	}

	challengesIssued.WithLabelValues(string(ch.Kind), source).Inc()

	return ch.Redact(sig), nil
}

// fallbackChallenge is the challenge of last resort: a plain text prompt
// that every client can render and every session can solve.
func (s *Server) fallbackChallenge(cause error) *captcha.Challenge {
	word := fmt.Sprintf("solara%d", s.now().Unix()%10000)

	return &captcha.Challenge{
		ID:           captcha.NewID(),
		Kind:         captcha.KindText,
		Instructions: fmt.Sprintf("Type the word '%s'", word),
		UIData:       map[string]any{"display_text": word},
		Solution:     map[string]any{"value": word},
		Metadata: map[string]any{
			"fallback": true,
			"error":    cause.Error(),
		},
	}
}
