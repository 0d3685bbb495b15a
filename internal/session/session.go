// Package session routes inbound reaction events to at most one registered
// handler per prompt, with ownership filtering and timeout-based expiry.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"discord-wager-bot/internal/gateway"
)

// DefaultTimeout is used when a session is registered without one.
const DefaultTimeout = 2 * time.Minute

// Handler consumes a single reaction event for a session.
type Handler func(ctx context.Context, ev gateway.Event) error

// Session is a single-consumer route from a prompt's reaction events to a
// handler. If OwnerID is set, events from other actors are ignored. OnExpire
// runs exactly once when the session is cleared or times out.
type Session struct {
	OwnerID  string
	Timeout  time.Duration
	OnExpire func()
	Handle   Handler
}

type entry struct {
	session *Session
	timer   *time.Timer
	expired sync.Once
}

// Registry maps prompt IDs to sessions. At most one session exists per
// prompt; registering replaces and cancels any prior one.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register installs a session for promptID, replacing and expiring any
// existing session for the same prompt. A timer is armed that clears the
// session after its timeout.
func (r *Registry) Register(promptID string, s *Session) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	r.mu.Lock()
	prev := r.entries[promptID]
	e := &entry{session: s}
	e.timer = time.AfterFunc(timeout, func() {
		r.clearEntry(promptID, e)
	})
	r.entries[promptID] = e
	r.mu.Unlock()

	if prev != nil {
		prev.timer.Stop()
		prev.expire()
	}
}

// Get returns the session registered for promptID, if any.
func (r *Registry) Get(promptID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[promptID]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Clear removes the session for promptID, cancels its timer, and runs its
// OnExpire callback. Safe to call any number of times.
func (r *Registry) Clear(promptID string) {
	r.mu.Lock()
	e, ok := r.entries[promptID]
	if ok {
		delete(r.entries, promptID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	e.timer.Stop()
	e.expire()
}

// clearEntry removes promptID only while it still maps to e. A timer that
// fires in the instant its session is replaced must not evict the successor.
func (r *Registry) clearEntry(promptID string, e *entry) {
	r.mu.Lock()
	cur, ok := r.entries[promptID]
	if !ok || cur != e {
		r.mu.Unlock()
		return
	}
	delete(r.entries, promptID)
	r.mu.Unlock()

	e.timer.Stop()
	e.expire()
}

// Dispatch routes one reaction event to the session registered for its
// prompt. Events for unknown prompts and events from non-owners are dropped.
// A handler error clears the session before the error is returned to the
// caller's supervisory boundary.
func (r *Registry) Dispatch(ctx context.Context, ev gateway.Event) error {
	s, ok := r.Get(ev.PromptID)
	if !ok {
		return nil
	}
	if s.OwnerID != "" && ev.ActorID != s.OwnerID {
		return nil
	}

	if err := s.Handle(ctx, ev); err != nil {
		log.Warn().
			Err(err).
			Str("prompt_id", ev.PromptID).
			Str("actor_id", ev.ActorID).
			Msg("Session handler failed, clearing session")
		r.Clear(ev.PromptID)
		return err
	}
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (e *entry) expire() {
	e.expired.Do(func() {
		if e.session.OnExpire != nil {
			e.session.OnExpire()
		}
	})
}
