// Package session tracks per-client verification state: at most one live
// challenge, attempt counters, and TTL-bounded lifetime.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/darkglass/darkglass"
	"github.com/darkglass/darkglass/lib/captcha"
	"github.com/darkglass/darkglass/lib/store"
)

// ErrNotFound is returned for sessions that do not exist, including ones
// that existed but have aged past the TTL. The two cases are deliberately
// indistinguishable.
var ErrNotFound = errors.New("session: not found")

// ActiveChallenge is the signature-backed challenge currently live in a
// session. A session holds one iff a client generated a challenge and has
// not yet solved it.
type ActiveChallenge struct {
	Challenge captcha.Challenge `json:"challenge"`
	Signature string            `json:"signature"`
	CreatedAt time.Time         `json:"created"`
}

// NoAttempt is the LastAttempt value of a session that has never had an
// answer submitted against its current challenge.
var NoAttempt = time.Time{}

// Session is the unit of interaction state.
type Session struct {
	ID              string           `json:"id"`
	CreatedAt       time.Time        `json:"created"`
	Captcha         *ActiveChallenge `json:"captcha,omitempty"`
	Attempts        int              `json:"attempts"`
	LastAttempt     time.Time        `json:"last_attempt"`
	GenerationCount int              `json:"generation_count"`
}

// Manager owns the session table. All three operations serialize on a
// single mutex: the table is small and the operation bodies are cheap, so
// correctness wins over throughput here.
type Manager struct {
	mu        sync.Mutex
	db        store.JSON[Session]
	backing   store.Interface
	ttl       time.Duration
	lastSweep time.Time

	// Now is the clock used for TTL and sweep decisions, swappable in tests.
	Now func() time.Time
}

func NewManager(backing store.Interface) *Manager {
	return &Manager{
		db: store.JSON[Session]{
			Underlying: backing,
			Prefix:     "session:",
		},
		backing: backing,
		ttl:     darkglass.SessionTTL,
		Now:     time.Now,
	}
}

// SetTTL overrides the default session lifetime. Call it once during setup,
// before the manager starts serving.
func (m *Manager) SetTTL(d time.Duration) {
	if d > 0 {
		m.ttl = d
	}
}

// Create mints a fresh session with all counters zeroed and triggers an
// amortized sweep of expired sessions.
func (m *Manager) Create(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Now()
	sess := Session{
		ID:        captcha.NewID(),
		CreatedAt: now,
	}

	if err := m.db.Set(ctx, sess.ID, sess, m.ttl); err != nil {
		return "", fmt.Errorf("session: can't persist new session: %w", err)
	}

	m.maybeSweep(ctx, now)

	return sess.ID, nil
}

// Get returns the session, or ErrNotFound if it is absent or expired.
// Expired sessions are deleted on the way out so they behave exactly like
// sessions that never existed.
func (m *Manager) Get(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.get(ctx, id)
}

// get assumes the caller holds the mutex.
func (m *Manager) get(ctx context.Context, id string) (Session, error) {
	sess, err := m.db.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		return Session{}, fmt.Errorf("session: can't load %q: %w", id, err)
	}

	if m.Now().Sub(sess.CreatedAt) > m.ttl {
		// Lazy deletion; ignore the error, the sweep will catch stragglers.
		_ = m.db.Delete(ctx, id)
		return Session{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	return sess, nil
}

// Update applies mutate to the session under the table lock and persists
// the result with the session's remaining lifetime, so updates never extend
// the TTL. Returns ErrNotFound for absent or expired sessions.
func (m *Manager) Update(ctx context.Context, id string, mutate func(*Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.get(ctx, id)
	if err != nil {
		return err
	}

	mutate(&sess)
	sess.ID = id // mutate must not be able to re-home the record

	now := m.Now()
	remaining := m.ttl - now.Sub(sess.CreatedAt)
	if err := m.db.Set(ctx, id, sess, remaining); err != nil {
		return fmt.Errorf("session: can't persist update to %q: %w", id, err)
	}

	m.maybeSweep(ctx, now)

	return nil
}

// maybeSweep evicts expired sessions at most once per cleanup interval.
// It runs inside the caller's critical section as an amortized side effect
// of Create and Update, never as a background task.
func (m *Manager) maybeSweep(ctx context.Context, now time.Time) {
	if now.Sub(m.lastSweep) < darkglass.CleanupInterval {
		return
	}
	m.lastSweep = now

	if sw, ok := m.backing.(store.Sweeper); ok {
		if err := sw.Sweep(ctx); err != nil {
			// Nothing actionable for the caller; stale entries still expire
			// lazily on access.
			return
		}
	}
}
