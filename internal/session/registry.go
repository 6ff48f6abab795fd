// Package session owns the per-user working state. Each session wraps one
// collector.List; nothing is persisted, and idle sessions are evicted.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfmerger/internal/collector"
	"github.com/local/pdfmerger/internal/logger"
	"github.com/local/pdfmerger/internal/metrics"
)

// ErrNotFound is returned for unknown or evicted sessions.
var ErrNotFound = errors.New("session not found")

// Session is one user's working set.
type Session struct {
	ID        string
	CreatedAt time.Time
	List      *collector.List

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastUsed = now
	s.mu.Unlock()
}

// LastUsed returns the time of the last lookup.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Registry maps session ids to sessions.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	defaultName string
	now         func() time.Time
}

// NewRegistry returns an empty registry. New sessions default their output
// name to defaultName.
func NewRegistry(defaultName string) *Registry {
	return &Registry{sessions: map[string]*Session{}, defaultName: defaultName, now: time.Now}
}

// Create starts a new empty session.
func (r *Registry) Create() *Session {
	id := uuid.NewString()
	now := r.now()
	s := &Session{
		ID:        id,
		CreatedAt: now,
		lastUsed:  now,
		List: collector.New(
			collector.WithDefaultOutputName(r.defaultName),
			collector.WithLogger(logger.ForSession(id)),
		),
	}
	r.mu.Lock()
	r.sessions[id] = s
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SetSessionsActive(n)
	log.Debug().Str("session_id", id).Msg("session created")
	return s
}

// Get returns the session and marks it used.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.touch(r.now())
	return s, nil
}

// Delete drops a session and its files.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SetSessionsActive(n)
	return ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for at least maxIdle and returns how many went.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	now := r.now()
	r.mu.Lock()
	evicted := 0
	for id, s := range r.sessions {
		if now.Sub(s.LastUsed()) >= maxIdle {
			delete(r.sessions, id)
			evicted++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SetSessionsActive(n)
	if evicted > 0 {
		log.Info().Int("evicted", evicted).Int("remaining", n).Msg("idle sessions swept")
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(maxIdle)
		}
	}
}
