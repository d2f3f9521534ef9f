package store_test

import (
	"testing"
	"time"

	"github.com/darkglass/darkglass/lib/store"
	"github.com/darkglass/darkglass/lib/store/memory"
)

func TestJSON(t *testing.T) {
	type data struct {
		ID string `json:"id"`
	}

	st := memory.New()
	db := store.JSON[data]{
		Underlying: st,
		Prefix:     "session:",
	}

	if err := db.Set(t.Context(), "test", data{ID: t.Name()}, time.Minute); err != nil {
		t.Fatal(err)
	}

	got, err := db.Get(t.Context(), "test")
	if err != nil {
		t.Fatal(err)
	}

	if got.ID != t.Name() {
		t.Fatalf("got wrong data for key \"test\", wanted %q but got: %q", t.Name(), got.ID)
	}

	if err := db.Delete(t.Context(), "test"); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Get(t.Context(), "test"); err == nil {
		t.Fatal("wanted invalid get to fail, it did not")
	}

	if err := st.Set(t.Context(), "session:test", []byte("}"), time.Minute); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Get(t.Context(), "test"); err == nil {
		t.Fatal("wanted invalid get to fail, it did not")
	}
}
