package valkey

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/darkglass/darkglass/lib/store/storetest"
)

func TestImpl(t *testing.T) {
	url := os.Getenv("VALKEY_URL")
	if url == "" {
		t.Skip("set VALKEY_URL (eg redis://localhost:6379/0) to run valkey store tests")
	}

	data, err := json.Marshal(Config{URL: url})
	if err != nil {
		t.Fatal(err)
	}

	storetest.Common(t, Factory{}, json.RawMessage(data))
}

func TestConfigValid(t *testing.T) {
	if err := (Config{}).Valid(); err == nil {
		t.Error("empty config must not validate")
	}

	if err := (Config{URL: "redis://localhost:6379/0"}).Valid(); err != nil {
		t.Errorf("wanted config to be valid, got: %v", err)
	}
}
