package policy

import (
	"errors"
	"strings"
	"testing"

	"github.com/darkglass/darkglass/lib/captcha"
	_ "github.com/darkglass/darkglass/lib/store/memory"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Valid(); err != nil {
		t.Errorf("default policy does not validate: %v", err)
	}
}

func TestParseOverrides(t *testing.T) {
	c, err := Parse(strings.NewReader(`
challenge_kinds:
  - text
  - math
max_attempts: 3
rate_limit_seconds: 30
oracle:
  endpoint: https://oracle.internal/v1/generate
store:
  backend: memory
`))
	if err != nil {
		t.Fatal(err)
	}

	if len(c.ChallengeKinds) != 2 || c.ChallengeKinds[0] != captcha.KindText {
		t.Errorf("challenge kinds did not override: %v", c.ChallengeKinds)
	}
	if c.MaxAttempts != 3 {
		t.Errorf("wanted max_attempts 3, got: %d", c.MaxAttempts)
	}

	// Omitted fields keep their defaults.
	if c.SessionTTL != 3600 {
		t.Errorf("wanted the default session TTL, got: %d", c.SessionTTL)
	}
	if c.Oracle.GenerateTimeout != 8 {
		t.Errorf("wanted the default generate timeout, got: %d", c.Oracle.GenerateTimeout)
	}
}

func TestParseEmpty(t *testing.T) {
	c, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}

	if c.Store.Backend != "memory" {
		t.Errorf("empty policy should fall back to defaults, got backend: %q", c.Store.Backend)
	}
}

func TestParseRejectsBadPolicies(t *testing.T) {
	for _, tt := range []struct {
		name string
		in   string
		want error
	}{
		{"unknown kind", "challenge_kinds: [riddle]", ErrUnknownKind},
		{"unknown backend", "store:\n  backend: cassandra", ErrUnknownBackend},
		{"zero attempts", "max_attempts: 0", nil},
		{"negative rate limit", "rate_limit_seconds: -5", ErrBadDuration},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.in))
			if err == nil {
				t.Fatal("wanted parsing to fail")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("wanted %v, got: %v", tt.want, err)
			}
		})
	}
}

func TestParseCollectsAllErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(`
challenge_kinds: [riddle]
max_attempts: 0
store:
  backend: cassandra
`))
	if err == nil {
		t.Fatal("wanted parsing to fail")
	}

	if !errors.Is(err, ErrUnknownKind) || !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("wanted every problem reported at once, got: %v", err)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse(strings.NewReader("max_atempts: 3")); err == nil {
		t.Error("typoed fields should be rejected, not ignored")
	}
}
