package signer

import (
	"testing"
	"time"

	"github.com/darkglass/darkglass"
)

func newSigner(t *testing.T) *Signer {
	t.Helper()

	s, err := New([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatal(err)
	}

	return s
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("wanted construction without a secret to fail")
	}
}

func TestRoundTrip(t *testing.T) {
	s := newSigner(t)

	payload := []byte(`{"captcha_id":"abc123","captcha_type":"text"}`)
	sig := s.Sign("session-1", payload)

	if !s.Verify("session-1", payload, sig) {
		t.Error("freshly signed payload did not verify")
	}
}

func TestWindowTolerance(t *testing.T) {
	s := newSigner(t)

	now := time.Now()
	s.Now = func() time.Time { return now }

	payload := []byte("payload")
	sig := s.Sign("sid", payload)

	// Anything within one full window of signing must still verify.
	now = now.Add(darkglass.SignatureWindow - time.Second)
	if !s.Verify("sid", payload, sig) {
		t.Error("signature did not survive a window rollover")
	}

	// Two windows later the signature is gone.
	now = now.Add(2 * darkglass.SignatureWindow)
	if s.Verify("sid", payload, sig) {
		t.Error("signature outlived the previous-window grace period")
	}
}

func TestTamperDetection(t *testing.T) {
	s := newSigner(t)

	payload := []byte(`{"solution":{"value":"solara"}}`)
	sig := s.Sign("sid", payload)

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01

		if s.Verify("sid", mutated, sig) {
			t.Fatalf("mutating byte %d went undetected", i)
		}
	}

	if s.Verify("other-session", payload, sig) {
		t.Error("signature verified under the wrong session id")
	}
}
