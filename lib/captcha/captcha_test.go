package captcha

import (
	"bytes"
	"strings"
	"testing"
)

func TestCanonicalStable(t *testing.T) {
	ch := &Challenge{
		ID:           "abc123def456",
		Kind:         KindMath,
		Instructions: "Solve the arithmetic expression and type the result.",
		UIData:       map[string]any{"question": "What is 4 * 7 ?"},
		Solution:     map[string]any{"value": "28"},
		Metadata:     map[string]any{"generated_by": "local_fallback", "seed": 42},
	}

	first, err := ch.Canonical()
	if err != nil {
		t.Fatal(err)
	}

	for range 16 {
		again, err := ch.Canonical()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("canonical serialization is unstable:\n%s\n%s", first, again)
		}
	}
}

func TestCanonicalDetectsMutation(t *testing.T) {
	ch := &Challenge{
		ID:       "abc123def456",
		Kind:     KindText,
		UIData:   map[string]any{"question": "Type the word 'solara'"},
		Solution: map[string]any{"value": "solara"},
	}

	before, err := ch.Canonical()
	if err != nil {
		t.Fatal(err)
	}

	ch.Solution["value"] = "solarb"

	after, err := ch.Canonical()
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(before, after) {
		t.Error("mutating the solution did not change the canonical form")
	}
}

func TestRedactOmitsSolution(t *testing.T) {
	ch := &Challenge{
		ID:       "abc123def456",
		Kind:     KindText,
		UIData:   map[string]any{"question": "Type the word 'solara'"},
		Solution: map[string]any{"value": "solara"},
		Metadata: map[string]any{"generated_by": "local_fallback"},
	}

	view := ch.Redact("deadbeef")

	if view.Signature != "deadbeef" {
		t.Errorf("wanted signature to carry over, got: %q", view.Signature)
	}

	// The public view type has no solution or metadata fields at all; make
	// sure nothing snuck into the UI payload either.
	for k := range view.UIData {
		if strings.Contains(strings.ToLower(k), "solution") {
			t.Errorf("ui_data contains a solution-shaped key: %q", k)
		}
	}
}

func TestKindValid(t *testing.T) {
	for _, k := range Kinds {
		if err := k.Valid(); err != nil {
			t.Errorf("kind %q should be valid: %v", k, err)
		}
	}

	if err := Kind("sudoku").Valid(); err == nil {
		t.Error("unknown kind should not validate")
	}
}

func TestNewID(t *testing.T) {
	seen := map[string]bool{}
	for range 64 {
		id := NewID()
		if len(id) != 12 {
			t.Fatalf("wanted a 12 character id, got %q", id)
		}
		if seen[id] {
			t.Fatalf("id %q repeated", id)
		}
		seen[id] = true
	}
}
