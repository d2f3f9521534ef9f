// Package policy loads the service's operator-facing configuration: which
// challenge kinds are in rotation, attempt and rate limits, where the
// remote oracle lives, and which store backend holds sessions.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/darkglass/darkglass"
	"github.com/darkglass/darkglass/lib/captcha"
	"github.com/darkglass/darkglass/lib/store"
)

var (
	ErrUnknownKind    = errors.New("policy: unknown challenge kind")
	ErrUnknownBackend = errors.New("policy: unknown store backend")
	ErrBadDuration    = errors.New("policy: durations must be positive")
)

// Oracle points at the remote generation endpoint. The bearer token is
// deliberately absent here: it comes from the environment only, so policy
// files stay safe to commit.
type Oracle struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	GenerateTimeout int    `yaml:"generate_timeout_seconds" json:"generate_timeout_seconds"`
	JudgeTimeout    int    `yaml:"judge_timeout_seconds" json:"judge_timeout_seconds"`
}

// Store names a registered backend and carries its backend-specific
// parameters opaquely; validation is delegated to the backend's factory.
type Store struct {
	Backend    string          `yaml:"backend" json:"backend"`
	Parameters json.RawMessage `yaml:"parameters" json:"parameters"`
}

func (s *Store) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Backend    string         `yaml:"backend"`
		Parameters map[string]any `yaml:"parameters"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	s.Backend = raw.Backend
	if raw.Parameters != nil {
		data, err := json.Marshal(raw.Parameters)
		if err != nil {
			return fmt.Errorf("policy: can't convert store parameters: %w", err)
		}
		s.Parameters = data
	}

	return nil
}

// Config is the parsed policy file with defaults applied.
type Config struct {
	ChallengeKinds   []captcha.Kind `yaml:"challenge_kinds" json:"challenge_kinds"`
	MaxAttempts      int            `yaml:"max_attempts" json:"max_attempts"`
	RateLimitSeconds int            `yaml:"rate_limit_seconds" json:"rate_limit_seconds"`
	SessionTTL       int            `yaml:"session_ttl_seconds" json:"session_ttl_seconds"`
	Oracle           Oracle         `yaml:"oracle" json:"oracle"`
	Store            Store          `yaml:"store" json:"store"`
}

// Default returns the configuration used when no policy file is given.
func Default() *Config {
	return &Config{
		ChallengeKinds:   append([]captcha.Kind(nil), captcha.Kinds...),
		MaxAttempts:      darkglass.MaxAttempts,
		RateLimitSeconds: int(darkglass.RateLimitWindow.Seconds()),
		SessionTTL:       int(darkglass.SessionTTL.Seconds()),
		Oracle: Oracle{
			GenerateTimeout: int(darkglass.OracleGenerateTimeout.Seconds()),
			JudgeTimeout:    int(darkglass.OracleJudgeTimeout.Seconds()),
		},
		Store: Store{Backend: "memory"},
	}
}

// Valid collects every problem with the config instead of stopping at the
// first one.
func (c *Config) Valid() error {
	var errs []error

	for _, kind := range c.ChallengeKinds {
		if kind.Valid() != nil {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownKind, kind))
		}
	}
	if len(c.ChallengeKinds) == 0 {
		errs = append(errs, errors.New("policy: challenge_kinds must not be empty"))
	}

	if c.MaxAttempts <= 0 {
		errs = append(errs, errors.New("policy: max_attempts must be positive"))
	}
	if c.RateLimitSeconds <= 0 || c.SessionTTL <= 0 {
		errs = append(errs, ErrBadDuration)
	}
	if c.Oracle.GenerateTimeout <= 0 || c.Oracle.JudgeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%w (oracle timeouts)", ErrBadDuration))
	}

	if factory, ok := store.Get(c.Store.Backend); !ok {
		errs = append(errs, fmt.Errorf("%w: %q (have: %v)", ErrUnknownBackend, c.Store.Backend, store.Methods()))
	} else if err := factory.Valid(c.Store.Parameters); err != nil {
		errs = append(errs, fmt.Errorf("policy: store parameters are invalid: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Config) SessionTTLDuration() time.Duration {
	return time.Duration(c.SessionTTL) * time.Second
}

func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitSeconds) * time.Second
}

// Parse reads a policy from rd, fills in defaults for anything omitted and
// validates the result.
func Parse(rd io.Reader) (*Config, error) {
	c := Default()

	dec := yaml.NewDecoder(rd)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("policy: can't parse: %w", err)
	}

	if err := c.Valid(); err != nil {
		return nil, err
	}

	return c, nil
}

// Load reads a policy from the named file.
func Load(fname string) (*Config, error) {
	fin, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("policy: can't open %s: %w", fname, err)
	}
	defer fin.Close()

	c, err := Parse(fin)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}

	return c, nil
}
