package stm

import (
	"log/slog"
	"os"
	"time"
)

// Resolution selects what Atomically does once a transaction has hit its
// MaxConflicts limit without ever committing (spec.md §4.6).
type Resolution int

const (
	// Throw returns ErrMaxConflicts to the caller of Atomically. This is
	// the default.
	Throw Resolution = iota
	// RunLocked re-attempts the transaction one final time while holding a
	// process-wide writer-exclusion lock, guaranteeing the attempt cannot
	// conflict with any other concurrently committing transaction. It
	// trades throughput for forward-progress.
	RunLocked
)

// Deadline bounds how long a call to Retry is willing to park before giving
// up and returning ErrRetryTimeout, mirroring original_source/wstm/stm.h's
// WTimeArg. The zero Deadline sets no timeout of its own: a Retry given it
// waits for as long as WithMaxRetryWait allows, or indefinitely if that is
// unset.
type Deadline struct {
	until time.Time
	set   bool
}

// DeadlineAfter returns a Deadline that expires d after DeadlineAfter is
// called.
func DeadlineAfter(d time.Duration) Deadline {
	return Deadline{until: time.Now().Add(d), set: true}
}

// DeadlineAt returns a Deadline that expires at the given absolute time.
func DeadlineAt(t time.Time) Deadline {
	return Deadline{until: t, set: true}
}

func (d Deadline) hasTimeout() bool { return d.set }

func (d Deadline) remaining() time.Duration {
	return time.Until(d.until)
}

type txConfig struct {
	maxConflicts int
	maxRetries   int
	maxRetryWait time.Duration
	resolution   Resolution
	logger       *slog.Logger
	hooks        Hooks
}

func defaultTxConfig() txConfig {
	return txConfig{
		maxConflicts: 0, // 0 == unlimited
		maxRetries:   0, // 0 == unlimited
		maxRetryWait: 0, // 0 == block indefinitely
		resolution:   Throw,
		logger:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
}

// Option configures a single call to Atomically.
type Option func(*txConfig)

// WithMaxConflicts caps the number of commit-time conflicts Atomically will
// absorb before applying its Resolution policy. 0 (the default) means
// unlimited.
func WithMaxConflicts(n int) Option {
	return func(c *txConfig) { c.maxConflicts = n }
}

// WithMaxRetries caps the number of times a transaction may call Retry
// before Atomically gives up with ErrMaxRetries. 0 (the default) means
// unlimited.
func WithMaxRetries(n int) Option {
	return func(c *txConfig) { c.maxRetries = n }
}

// WithMaxRetryWait bounds how long any single Retry call is allowed to park
// before Atomically returns ErrRetryTimeout. 0 (the default) means block
// indefinitely; a deadline passed explicitly to Retry takes precedence over
// it, whether shorter or longer.
func WithMaxRetryWait(d time.Duration) Option {
	return func(c *txConfig) { c.maxRetryWait = d }
}

// WithResolution sets the policy applied once MaxConflicts is exhausted.
func WithResolution(r Resolution) Option {
	return func(c *txConfig) { c.resolution = r }
}

// WithLogger sets the logger Atomically uses to report conflicts and
// resolution decisions.
func WithLogger(l *slog.Logger) Option {
	return func(c *txConfig) { c.logger = l }
}

// WithHooks attaches an observer notified of transaction lifecycle events.
// Passing nil (the default) disables observation entirely.
func WithHooks(h Hooks) Option {
	return func(c *txConfig) { c.hooks = h }
}
