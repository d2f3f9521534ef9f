package decaymap

import (
	"testing"
	"time"
)

func TestGetSetDelete(t *testing.T) {
	m := New[string, int]()

	if _, ok := m.Get("a"); ok {
		t.Error("wanted a to not exist yet")
	}

	m.Set("a", 42, time.Minute)

	val, ok := m.Get("a")
	if !ok {
		t.Fatal("wanted a to exist")
	}
	if val != 42 {
		t.Errorf("wanted 42, got: %d", val)
	}

	if !m.Delete("a") {
		t.Error("delete of existing key reported false")
	}
	if m.Delete("a") {
		t.Error("delete of missing key reported true")
	}
}

func TestExpiry(t *testing.T) {
	m := New[string, string]()

	now := time.Now()
	m.Now = func() time.Time { return now }

	m.Set("k", "v", 150*time.Millisecond)

	if _, ok := m.Get("k"); !ok {
		t.Error("wanted k to exist before expiry")
	}

	now = now.Add(time.Second)

	if _, ok := m.Get("k"); ok {
		t.Error("wanted k to be expired")
	}

	if m.Len() != 0 {
		t.Errorf("expired entry was not lazily deleted, len: %d", m.Len())
	}
}

func TestCleanup(t *testing.T) {
	m := New[int, int]()

	now := time.Now()
	m.Now = func() time.Time { return now }

	for i := range 10 {
		m.Set(i, i, time.Duration(i)*time.Minute)
	}

	now = now.Add(5 * time.Minute)
	m.Cleanup()

	if m.Len() != 5 {
		t.Errorf("wanted 5 entries to survive the sweep, got: %d", m.Len())
	}
}
