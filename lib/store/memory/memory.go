package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/darkglass/darkglass/decaymap"
	"github.com/darkglass/darkglass/lib/store"
)

type factory struct{}

func (factory) Build(_ context.Context, _ json.RawMessage) (store.Interface, error) {
	return New(), nil
}

func (factory) Valid(json.RawMessage) error { return nil }

func init() {
	store.Register("memory", factory{})
}

type impl struct {
	store *decaymap.Impl[string, []byte]
}

func (i *impl) Delete(_ context.Context, key string) error {
	if !i.store.Delete(key) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return nil
}

func (i *impl) Get(_ context.Context, key string) ([]byte, error) {
	result, ok := i.store.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	return result, nil
}

func (i *impl) Set(_ context.Context, key string, value []byte, expiry time.Duration) error {
	i.store.Set(key, value, expiry)
	return nil
}

// Sweep evicts expired entries in bulk. The session manager amortizes the
// calls; there is no background cleanup goroutine.
func (i *impl) Sweep(_ context.Context) error {
	i.store.Cleanup()
	return nil
}

// New creates a simple in-memory store. This will not scale past a single
// Darkglass instance.
func New() store.Interface {
	return &impl{
		store: decaymap.New[string, []byte](),
	}
}
