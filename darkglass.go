// Package darkglass holds the protocol constants shared between the server
// core, the command line frontend, and the tests.
package darkglass

import "time"

var (
	// Version is the current version of Darkglass Verify.
	//
	// This variable is replaced at build time with the current git commit hash.
	Version = "devel"
)

const (
	// SessionTTL bounds the lifetime of a verification session. A session
	// older than this behaves exactly like one that was never created.
	SessionTTL = time.Hour

	// SignatureWindow is the time bucket used when signing challenges.
	// Verification accepts the current and the immediately previous window
	// to tolerate clock and latency skew.
	SignatureWindow = 5 * time.Minute

	// CleanupInterval is the minimum gap between expired-session sweeps.
	// Sweeps run as an amortized side effect of store operations, never as
	// a background task.
	CleanupInterval = 5 * time.Minute

	// MaxAttempts is the number of verification attempts a session gets
	// before the rate limiter kicks in.
	MaxAttempts = 6

	// RateLimitWindow is how long the rate limiter holds a session after it
	// burns through MaxAttempts.
	RateLimitWindow = time.Minute

	// APIPrefix is where all JSON API routes are mounted.
	APIPrefix = "/api/v1/"

	// OracleGenerateTimeout and OracleJudgeTimeout bound calls to the remote
	// oracle. A timed-out call is abandoned, not retried.
	OracleGenerateTimeout = 8 * time.Second
	OracleJudgeTimeout    = 6 * time.Second
)
