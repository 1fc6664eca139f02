package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/progcompcl/ide/schema"
	"pkt.systems/pslog"
)

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Config      schema.SessionConfig
	Factory     ChannelFactory
	Sink        EventSink
	Logger      pslog.Logger
	MaxSessions int
	// OnClosed runs after a session is terminated and forgotten.
	OnClosed func(id schema.SessionID)
}

// Registry owns independent sessions keyed by id.
type Registry struct {
	cfg         schema.SessionConfig
	factory     ChannelFactory
	sink        EventSink
	logger      pslog.Logger
	maxSessions int
	onClosed    func(id schema.SessionID)

	mu       sync.Mutex
	sessions map[schema.SessionID]*Session
	// opening counts slots reserved by Open calls still spawning a worker.
	opening int
}

// ErrTooManySessions indicates the registry is at capacity.
var ErrTooManySessions = errors.New("too many sessions")

// NewRegistry constructs an empty registry.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Factory == nil {
		return nil, errors.New("missing channel factory")
	}
	cfg, err := schema.NormalizeSessionConfig(opts.Config)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Registry{
		cfg:         cfg,
		factory:     opts.Factory,
		sink:        opts.Sink,
		logger:      logger,
		maxSessions: opts.MaxSessions,
		onClosed:    opts.OnClosed,
		sessions:    make(map[schema.SessionID]*Session),
	}, nil
}

// Open creates a session with a fresh worker.
func (r *Registry) Open(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	if r.maxSessions > 0 && len(r.sessions)+r.opening >= r.maxSessions {
		r.mu.Unlock()
		return nil, ErrTooManySessions
	}
	r.opening++
	r.mu.Unlock()

	id := schema.SessionID(uuid.NewString())
	session, err := NewSession(ctx, SessionOptions{
		ID:      id,
		Config:  r.cfg,
		Factory: r.factory,
		Sink:    r.sink,
		Logger:  r.logger,
	})
	r.mu.Lock()
	r.opening--
	if err != nil {
		r.mu.Unlock()
		r.logger.Warn("registry session open failed", "err", err)
		return nil, err
	}
	r.sessions[id] = session
	count := len(r.sessions)
	r.mu.Unlock()
	r.logger.Info("registry session open", "session", id, "sessions", count)
	return session, nil
}

// Get returns the session with the given id.
func (r *Registry) Get(id schema.SessionID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, schema.ErrSessionNotFound
	}
	return session, nil
}

// List returns the ids of all open sessions.
func (r *Registry) List() []schema.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]schema.SessionID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close terminates and forgets the session.
func (r *Registry) Close(id schema.SessionID) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return schema.ErrSessionNotFound
	}
	session.Terminate()
	r.closed(id)
	r.logger.Info("registry session close", "session", id)
	return nil
}

// CloseAll terminates every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[schema.SessionID]*Session)
	r.mu.Unlock()
	for id, session := range sessions {
		session.Terminate()
		r.closed(id)
	}
	if len(sessions) > 0 {
		r.logger.Info("registry sessions closed", "count", len(sessions))
	}
}

// ReapIdle closes sessions inactive for longer than maxIdle and returns how many were closed.
func (r *Registry) ReapIdle(now time.Time, maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	r.mu.Lock()
	var idle []*Session
	for id, session := range r.sessions {
		if now.Sub(session.LastActive()) > maxIdle {
			idle = append(idle, session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, session := range idle {
		session.Terminate()
		r.closed(session.ID())
		r.logger.Debug("registry session reaped", "session", session.ID())
	}
	return len(idle)
}

func (r *Registry) closed(id schema.SessionID) {
	if r.onClosed != nil {
		r.onClosed(id)
	}
}

// RunReaper calls ReapIdle every interval until ctx ends.
func (r *Registry) RunReaper(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.ReapIdle(now, maxIdle); n > 0 {
				r.logger.Info("registry reaped idle sessions", "count", n)
			}
		}
	}
}
