// Package session keeps per-search state in memory: the structured
// profile, the fetched candidate set and the latest ranked results. A
// session lives for one interactive search and expires on inactivity.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"

	"github.com/steph-grigors/ai-job-matcher/internal/types"
)

// ErrSessionNotFound covers unknown and expired session ids.
var ErrSessionNotFound = errors.New("session not found")

const (
	defaultTTL             = 30 * time.Minute
	defaultCleanupInterval = 5 * time.Minute
)

// Session is the state of one interactive search.
type Session struct {
	ID         string
	Profile    *types.ResumeProfile
	ResumeURI  string
	Listings   []*types.JobListing
	Results    []types.MatchResult
	Keywords   string
	Location   string
	CreatedAt  time.Time
	lastActive time.Time

	cancelMu  sync.Mutex
	cancelRun context.CancelFunc
}

// BeginRun derives a cancelable context for work owned by this session.
// A previous in-flight run is canceled first; abandoning the session
// cancels the returned context.
func (s *Session) BeginRun(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	s.cancelMu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.cancelRun = cancel
	s.cancelMu.Unlock()
	return ctx, cancel
}

func (s *Session) abort() {
	s.cancelMu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.cancelMu.Unlock()
}

// ListingByID returns the session's candidate listings keyed by id.
func (s *Session) ListingByID() map[string]*types.JobListing {
	out := make(map[string]*types.JobListing, len(s.Listings))
	for _, l := range s.Listings {
		out[l.ID] = l
	}
	return out
}

// Registry is an in-memory session store with TTL expiry. Safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	interval time.Duration
	logger   zerolog.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTTL overrides the inactivity expiry.
func WithTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithCleanupInterval overrides how often expired sessions are swept.
func WithCleanupInterval(interval time.Duration) RegistryOption {
	return func(r *Registry) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithRegistryLogger sets a custom logger.
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry and starts its background sweeper.
// Call Close to stop the sweeper.
func NewRegistry(options ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		ttl:      defaultTTL,
		interval: defaultCleanupInterval,
		logger:   zerolog.Nop(),
		stop:     make(chan struct{}),
	}
	for _, opt := range options {
		opt(r)
	}
	go r.sweep()
	return r
}

// Create registers a new session for the given profile and returns it.
func (r *Registry) Create(profile *types.ResumeProfile, resumeURI string) (*Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	s := &Session{
		ID:         id.String(),
		Profile:    profile,
		ResumeURI:  resumeURI,
		CreatedAt:  now,
		lastActive: now,
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.logger.Debug().Str("session_id", s.ID).Msg("session created")
	return s, nil
}

// Get returns the session and refreshes its activity timestamp.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Since(s.lastActive) > r.ttl {
		delete(r.sessions, id)
		s.abort()
		return nil, ErrSessionNotFound
	}
	s.lastActive = time.Now()
	return s, nil
}

// Update replaces the session's candidate set and results atomically.
func (r *Registry) Update(id string, fn func(*Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	fn(s)
	s.lastActive = time.Now()
	return nil
}

// Delete removes the session and cancels any in-flight run. Deleting an
// unknown id is a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	s := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if s != nil {
		s.abort()
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops the background sweeper.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

func (r *Registry) sweep() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.expire()
		}
	}
}

func (r *Registry) expire() {
	cutoff := time.Now().Add(-r.ttl)
	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.lastActive.Before(cutoff) {
			delete(r.sessions, id)
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		s.abort()
	}
	if len(expired) > 0 {
		r.logger.Debug().Int("expired", len(expired)).Msg("sessions expired")
	}
}
