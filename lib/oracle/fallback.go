package oracle

import (
	"context"
	"log/slog"

	"github.com/darkglass/darkglass/lib/captcha"
)

// Fallback tries the primary oracle once and silently degrades to the local
// one when that fails for any reason. The visitor never sees the failure,
// only a locally generated challenge.
type Fallback struct {
	Primary   Interface
	Secondary *Local
}

// WithFallback wraps primary so every failure degrades to local. A nil
// primary short-circuits to the local oracle alone.
func WithFallback(primary Interface, local *Local) Interface {
	if primary == nil {
		return local
	}
	return &Fallback{Primary: primary, Secondary: local}
}

func (f *Fallback) Generate(ctx context.Context, sessionID string) (*captcha.Challenge, error) {
	ch, err := f.Primary.Generate(ctx, sessionID)
	if err == nil {
		return ch, nil
	}

	slog.Debug("primary oracle generation failed, falling back", "sessionID", sessionID, "err", err)
	fallbacks.WithLabelValues("generate").Inc()

	return f.Secondary.Generate(ctx, sessionID)
}

func (f *Fallback) Judge(ctx context.Context, ch *captcha.Challenge, answer any) (Verdict, error) {
	v, err := f.Primary.Judge(ctx, ch, answer)
	if err == nil {
		return v, nil
	}

	slog.Debug("primary oracle judging failed, falling back", "captchaID", ch.ID, "err", err)
	fallbacks.WithLabelValues("judge").Inc()

	return f.Secondary.Judge(ctx, ch, answer)
}
