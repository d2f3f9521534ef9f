package session

import (
	"errors"
	"testing"
	"time"

	"github.com/darkglass/darkglass"
	"github.com/darkglass/darkglass/lib/captcha"
	"github.com/darkglass/darkglass/lib/store/memory"
)

func TestCreateGet(t *testing.T) {
	m := NewManager(memory.New())

	id, err := m.Create(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	if len(id) != 12 {
		t.Errorf("wanted a 12 character session id, got %q", id)
	}

	sess, err := m.Get(t.Context(), id)
	if err != nil {
		t.Fatal(err)
	}

	if sess.Attempts != 0 || sess.GenerationCount != 0 || sess.Captcha != nil {
		t.Errorf("new session is not zeroed: %+v", sess)
	}

	if _, err := m.Get(t.Context(), "nonexistent00"); !errors.Is(err, ErrNotFound) {
		t.Errorf("wanted ErrNotFound for unknown id, got: %v", err)
	}
}

func TestUpdate(t *testing.T) {
	m := NewManager(memory.New())

	id, err := m.Create(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	err = m.Update(t.Context(), id, func(s *Session) {
		s.Attempts = 3
		s.Captcha = &ActiveChallenge{
			Challenge: captcha.Challenge{ID: "abc123def456", Kind: captcha.KindText},
			Signature: "sig",
			CreatedAt: time.Now(),
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	sess, err := m.Get(t.Context(), id)
	if err != nil {
		t.Fatal(err)
	}

	if sess.Attempts != 3 {
		t.Errorf("wanted 3 attempts, got: %d", sess.Attempts)
	}
	if sess.Captcha == nil || sess.Captcha.Challenge.ID != "abc123def456" {
		t.Errorf("active challenge did not persist: %+v", sess.Captcha)
	}

	if err := m.Update(t.Context(), "nonexistent00", func(s *Session) {}); !errors.Is(err, ErrNotFound) {
		t.Errorf("wanted ErrNotFound updating unknown id, got: %v", err)
	}
}

func TestExpiryBehavesLikeNonexistence(t *testing.T) {
	m := NewManager(memory.New())

	now := time.Now()
	m.Now = func() time.Time { return now }

	id, err := m.Create(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(darkglass.SessionTTL + time.Second)

	_, gotErr := m.Get(t.Context(), id)
	_, wantErr := m.Get(t.Context(), "neverexisted")

	if !errors.Is(gotErr, ErrNotFound) || !errors.Is(wantErr, ErrNotFound) {
		t.Errorf("expired session must behave like a missing one, got %v vs %v", gotErr, wantErr)
	}

	if err := m.Update(t.Context(), id, func(s *Session) {}); !errors.Is(err, ErrNotFound) {
		t.Errorf("wanted ErrNotFound updating an expired session, got: %v", err)
	}
}

func TestUpdateDoesNotExtendTTL(t *testing.T) {
	m := NewManager(memory.New())

	now := time.Now()
	m.Now = func() time.Time { return now }

	id, err := m.Create(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	// Keep the session busy right up to the end of its life.
	for range 10 {
		now = now.Add(darkglass.SessionTTL / 11)
		if err := m.Update(t.Context(), id, func(s *Session) { s.Attempts++ }); err != nil {
			t.Fatal(err)
		}
	}

	now = now.Add(darkglass.SessionTTL / 5)

	if _, err := m.Get(t.Context(), id); !errors.Is(err, ErrNotFound) {
		t.Errorf("constant updates extended the session TTL: %v", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := NewManager(memory.New())

	id, err := m.Create(t.Context())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error)
	for range 8 {
		go func() {
			var err error
			for range 50 {
				if err = m.Update(t.Context(), id, func(s *Session) { s.Attempts++ }); err != nil {
					break
				}
			}
			done <- err
		}()
	}

	for range 8 {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}

	sess, err := m.Get(t.Context(), id)
	if err != nil {
		t.Fatal(err)
	}

	if sess.Attempts != 400 {
		t.Errorf("lost updates under concurrency: wanted 400 attempts, got %d", sess.Attempts)
	}
}
