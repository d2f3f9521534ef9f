package lib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/darkglass/darkglass/lib/session"
)

var (
	// ErrNoActiveChallenge means the session exists but holds nothing to
	// verify against, either because no challenge was requested or because
	// the last one was already solved.
	ErrNoActiveChallenge = errors.New("lib: session has no active captcha")

	// ErrSignatureInvalid means the stored challenge no longer matches its
	// signature. Either the backing store was tampered with or the signature
	// aged past the acceptance window.
	ErrSignatureInvalid = errors.New("lib: challenge signature is invalid")

	// ErrRateLimited means the session burned its attempt budget and must
	// cool off before submitting again.
	ErrRateLimited = errors.New("lib: too many attempts, slow down")

	// ErrVerificationUnavailable means the answer could not be judged at
	// all. The attempt still counted; the client may retry.
	ErrVerificationUnavailable = errors.New("lib: verification is unavailable")
)

// SubmitResult reports a judged submission. Success distinguishes correct
// from incorrect; judging failures surface as errors from Submit instead.
type SubmitResult struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Explanation string `json:"explanation,omitempty"`
	Normalized  any    `json:"normalized_answer,omitempty"`

	// PassToken is only set on success.
	PassToken string `json:"pass_token,omitempty"`
}

// Submit judges answer against the session's active challenge.
//
// The checks run in a fixed order: session existence, challenge presence,
// signature, rate limit, then the oracle. A rate limited session never
// reaches the oracle, so hammering the endpoint costs us nothing but the
// session lookup. The attempt counter moves on every judged submission,
// correct or not, even when judging itself fails.
func (s *Server) Submit(ctx context.Context, sessionID string, answer any) (*SubmitResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.Captcha == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoActiveChallenge, sessionID)
	}

	payload, err := sess.Captcha.Challenge.Canonical()
	if err != nil {
		return nil, fmt.Errorf("lib: can't canonicalize stored challenge: %w", err)
	}
	if !s.sig.Verify(sessionID, payload, sess.Captcha.Signature) {
		slog.Warn("stored challenge failed signature verification", "sessionID", sessionID, "captchaID", sess.Captcha.Challenge.ID)
		return nil, fmt.Errorf("%w: session %q", ErrSignatureInvalid, sessionID)
	}

	now := s.now()
	if sess.Attempts >= s.policy.MaxAttempts && now.Sub(sess.LastAttempt) < s.policy.RateLimitWindow() {
		rateLimitedTotal.Inc()
		return nil, fmt.Errorf("%w: session %q", ErrRateLimited, sessionID)
	}

	verdict, jerr := s.oracle.Judge(ctx, &sess.Captcha.Challenge, answer)
	correct := jerr == nil && verdict.OK && verdict.Correct

	err = s.sessions.Update(ctx, sessionID, func(sess *session.Session) {
		sess.Attempts++
		sess.LastAttempt = now
		if correct {
			sess.Captcha = nil
			sess.Attempts = 0
		}
	})
	if err != nil {
		return nil, err
	}

	validationsTotal.Inc()

	if jerr != nil {
		return nil, fmt.Errorf("%w: %w", ErrVerificationUnavailable, jerr)
	}
	if !verdict.OK {
		return nil, fmt.Errorf("%w: %s", ErrVerificationUnavailable, verdict.Explanation)
	}

	if !correct {
		return &SubmitResult{
			Success:     false,
			Message:     "Incorrect, try again.",
			Explanation: verdict.Explanation,
			Normalized:  verdict.NormalizedAnswer,
		}, nil
	}

	validationsPassed.Inc()

	token, err := s.passToken(sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("lib: can't mint pass token: %w", err)
	}

	return &SubmitResult{
		Success:     true,
		Message:     "Verification passed.",
		Explanation: verdict.Explanation,
		Normalized:  verdict.NormalizedAnswer,
		PassToken:   token,
	}, nil
}
