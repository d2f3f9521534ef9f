package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/darkglass/darkglass/lib/captcha"
)

func TestExtractJSON(t *testing.T) {
	for _, tt := range []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"prose wrapped", `Sure! Here is your challenge: {"a":1} Hope that helps.`, `{"a":1}`, false},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"nested braces", `note {"outer":{"inner":2}} done`, `{"outer":{"inner":2}}`, false},
		{"no object", "I refuse to answer.", "", true},
		{"broken object", `{"a":`, "", true},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("wanted extraction to fail, got: %s", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != tt.want {
				t.Errorf("wanted %s, got: %s", tt.want, got)
			}
		})
	}
}

func TestRemoteGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `Here you go: {"captcha_type":"math","instructions":"Solve it.","ui_data":{"display_text":"2 + 2 = ?"},"solution":{"value":"4"}}`)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "hunter2")

	ch, err := r.Generate(t.Context(), "sess")
	if err != nil {
		t.Fatal(err)
	}

	if ch.Kind != captcha.KindMath {
		t.Errorf("wanted a math challenge, got: %s", ch.Kind)
	}
	if ch.ID == "" {
		t.Error("missing captcha id was not filled in")
	}
	if ch.Metadata["generated_by"] != "remote_oracle" {
		t.Errorf("wanted remote_oracle provenance, got: %v", ch.Metadata["generated_by"])
	}
}

func TestRemoteNotConfigured(t *testing.T) {
	r := NewRemote("", "")

	if _, err := r.Generate(t.Context(), "sess"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("wanted ErrNotConfigured, got: %v", err)
	}
}

func TestRemoteJudge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"correct":true,"explanation":"close enough","normalized_answer":"solara"}`)
	}))
	defer srv.Close()

	r := NewRemote(srv.URL, "hunter2")
	ch := &captcha.Challenge{
		ID:       "abc123def456",
		Kind:     captcha.KindText,
		Solution: map[string]any{"value": "solara"},
	}

	v, err := r.Judge(t.Context(), ch, "SOLARA")
	if err != nil {
		t.Fatal(err)
	}
	if !v.OK || !v.Correct || v.Explanation != "close enough" {
		t.Errorf("verdict did not round-trip: %+v", v)
	}
}

type failingOracle struct{}

func (failingOracle) Generate(context.Context, string) (*captcha.Challenge, error) {
	return nil, errors.New("model is on fire")
}

func (failingOracle) Judge(context.Context, *captcha.Challenge, any) (Verdict, error) {
	return Verdict{}, errors.New("model is on fire")
}

func TestFallbackDegrades(t *testing.T) {
	o := WithFallback(failingOracle{}, &Local{SeedFor: func(string) int64 { return 1 }})

	ch, err := o.Generate(t.Context(), "sess")
	if err != nil {
		t.Fatal(err)
	}
	if ch.Metadata["generated_by"] != "local_fallback" {
		t.Errorf("wanted a locally generated challenge, got: %v", ch.Metadata["generated_by"])
	}

	ch.Kind = captcha.KindText
	ch.Solution = map[string]any{"value": "solara"}
	v, err := o.Judge(t.Context(), ch, "solara")
	if err != nil {
		t.Fatal(err)
	}
	if !v.OK || !v.Correct {
		t.Errorf("fallback judging did not engage: %+v", v)
	}
}

func TestFallbackPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"captcha_type":"text","instructions":"Type it.","ui_data":{"display_text":"zenqua"},"solution":{"value":"zenqua"}}`)
	}))
	defer srv.Close()

	o := WithFallback(NewRemote(srv.URL, "hunter2"), &Local{})

	ch, err := o.Generate(t.Context(), "sess")
	if err != nil {
		t.Fatal(err)
	}
	if ch.Metadata["generated_by"] != "remote_oracle" {
		t.Errorf("healthy primary should win, got: %v", ch.Metadata["generated_by"])
	}
}
