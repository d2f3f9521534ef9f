// Package lib ties the challenge machinery together: it owns the HTTP
// surface, the session table, the signer, and the oracle/renderer pipeline
// behind challenge generation and answer verification.
package lib

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/darkglass/darkglass"
	"github.com/darkglass/darkglass/lib/oracle"
	"github.com/darkglass/darkglass/lib/policy"
	"github.com/darkglass/darkglass/lib/render"
	"github.com/darkglass/darkglass/lib/session"
	"github.com/darkglass/darkglass/lib/signer"
	"github.com/darkglass/darkglass/lib/store"
	"github.com/darkglass/darkglass/lib/store/memory"
	"github.com/darkglass/darkglass/web"
)

// Options configures a Server. HMACSecret is the only mandatory field;
// everything else has a sensible default. Oracle and Renderer exist so
// tests can inject doubles.
type Options struct {
	// HMACSecret keys challenge signatures and pass tokens. The server
	// refuses to start without one.
	HMACSecret []byte

	Policy *policy.Config
	Store  store.Interface

	// OracleToken authenticates against the remote oracle endpoint named in
	// the policy. Empty means local generation only.
	OracleToken string

	Oracle   oracle.Interface
	Renderer render.Renderer

	// Now is the server's clock, swappable in tests.
	Now func() time.Time
}

// Server is one Darkglass Verify instance. It is an http.Handler.
type Server struct {
	policy   *policy.Config
	sessions *session.Manager
	sig      *signer.Signer
	oracle   oracle.Interface
	renderer render.Renderer
	secret   []byte
	now      func() time.Time
	mux      *http.ServeMux
}

// New assembles a server from opts.
func New(opts Options) (*Server, error) {
	sig, err := signer.New(opts.HMACSecret)
	if err != nil {
		return nil, fmt.Errorf("lib: can't construct signer: %w", err)
	}

	pol := opts.Policy
	if pol == nil {
		pol = policy.Default()
	}
	if err := pol.Valid(); err != nil {
		return nil, err
	}

	backing := opts.Store
	if backing == nil {
		backing = memory.New()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	sig.Now = now

	sessions := session.NewManager(backing)
	sessions.SetTTL(pol.SessionTTLDuration())
	sessions.Now = now

	orc := opts.Oracle
	if orc == nil {
		local := &oracle.Local{Kinds: pol.ChallengeKinds}
		if pol.Oracle.Endpoint != "" && opts.OracleToken != "" {
			remote := oracle.NewRemote(pol.Oracle.Endpoint, opts.OracleToken)
			remote.GenerateTimeout = time.Duration(pol.Oracle.GenerateTimeout) * time.Second
			remote.JudgeTimeout = time.Duration(pol.Oracle.JudgeTimeout) * time.Second
			orc = oracle.WithFallback(remote, local)
		} else {
			orc = local
		}
	}

	renderer := opts.Renderer
	if renderer == nil {
		renderer = render.Visual{}
	}

	s := &Server{
		policy:   pol,
		sessions: sessions,
		sig:      sig,
		oracle:   orc,
		renderer: renderer,
		secret:   opts.HMACSecret,
		now:      now,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST "+darkglass.APIPrefix+"session", s.createSession)
	s.mux.HandleFunc("GET "+darkglass.APIPrefix+"challenge/{sessionID}", s.getChallenge)
	s.mux.HandleFunc("POST "+darkglass.APIPrefix+"verify/{sessionID}", s.verifyAnswer)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "OK")
	})
	s.mux.Handle("GET /", http.FileServerFS(web.Static))
}

// passToken mints the JWT a client presents to the protected application
// after solving a challenge.
func (s *Server) passToken(sessionID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    "darkglass",
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.policy.SessionTTLDuration())),
		ID:        fmt.Sprintf("%d", now.UnixNano()),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.secret)
}

// ValidatePassToken parses and checks a pass token, returning the session id
// it was minted for. Protected applications call this on every request that
// carries a token.
func (s *Server) ValidatePassToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS512 {
			return nil, fmt.Errorf("lib: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("lib: invalid pass token: %w", err)
	}

	claims := parsed.Claims.(*jwt.RegisteredClaims)
	return claims.Subject, nil
}
