package bbolt

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/darkglass/darkglass/lib/store/storetest"
)

func TestImpl(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.bdb")

	config, err := json.Marshal(Config{Path: path})
	if err != nil {
		t.Fatal(err)
	}

	storetest.Common(t, Factory{}, config)
}
