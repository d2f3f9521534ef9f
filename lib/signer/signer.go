// Package signer implements the time-windowed HMAC envelope that makes
// stored challenges tamper-evident.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/darkglass/darkglass"
)

// ErrNoSecret is returned when a Signer is constructed without secret
// material. Callers must treat this as fatal: the service refuses to start
// rather than run unsigned.
var ErrNoSecret = errors.New("signer: secret material is required")

// Signer produces and verifies keyed MACs over challenge payloads. The
// signature covers session id, payload, and the current time bucket, so it
// stays stable within a window without storing the exact timestamp.
type Signer struct {
	secret []byte
	window time.Duration

	// Now is the clock used for window bucketing, swappable in tests.
	Now func() time.Time
}

func New(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}

	return &Signer{
		secret: secret,
		window: darkglass.SignatureWindow,
		Now:    time.Now,
	}, nil
}

func (s *Signer) mac(sessionID string, payload []byte, bucket int64) string {
	h := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(h, "%s|%s|%d", sessionID, payload, bucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Signer) bucket() int64 {
	return s.Now().Unix() / int64(s.window.Seconds())
}

// Sign returns the hex MAC for the payload in the current time window.
func (s *Signer) Sign(sessionID string, payload []byte) string {
	return s.mac(sessionID, payload, s.bucket())
}

// Verify recomputes the MAC for the current and the immediately previous
// window and accepts either, using a constant-time comparison. A challenge
// signed near the end of one window still verifies just after rollover.
func (s *Signer) Verify(sessionID string, payload []byte, signature string) bool {
	now := s.bucket()

	for _, bucket := range []int64{now, now - 1} {
		expected := s.mac(sessionID, payload, bucket)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}

	return false
}
