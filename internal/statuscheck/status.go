package statuscheck

import (
	"context"
	"errors"
	"time"
)

// Pinger models the minimal capability we need from a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
	Backend() string
}

// SessionCounter reports live sessions.
type SessionCounter interface {
	Len() int
}

// Checker aggregates health checks for the blob backend and session registry.
type Checker struct {
	blob     Pinger
	sessions SessionCounter
	timeout  time.Duration
}

// Options configures the Checker.
type Options struct {
	Blob     Pinger
	Sessions SessionCounter
	Timeout  time.Duration
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Backend string `json:"backend,omitempty"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Blob     Status `json:"blob"`
	Sessions int    `json:"sessions"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Checker{blob: opts.Blob, sessions: opts.Sessions, timeout: timeout}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	s := Summary{Blob: c.checkBlob(ctx)}
	if c.sessions != nil {
		s.Sessions = c.sessions.Len()
	}
	return s
}

func (c *Checker) checkBlob(ctx context.Context) Status {
	if c.blob == nil {
		return Status{OK: false, Message: "store unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.blob.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err), Backend: c.blob.Backend()}
	}
	return Status{OK: true, Message: "Connected", Backend: c.blob.Backend()}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
