// Package session keeps per-conversation state for the resolution engine:
// turn history, the pending clarification payload, and lifecycle. Access
// is serialized per session, so two concurrent requests for the same
// session never interleave their reads and writes.
package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Session states.
const (
	StateAwaitingMessage   = "awaiting_message"
	StateAwaitingSlotValue = "awaiting_slot_value"
	StateClosed            = "closed"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrClosed   = errors.New("session closed")
)

// Turn is one conversation turn.
type Turn struct {
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Pending carries the state of an unfinished resolution: either a set of
// candidate intents the user must choose between, or a chosen capability
// with partially collected slot values.
type Pending struct {
	Candidates  []string          `json:"candidates,omitempty"`
	Capability  string            `json:"capability,omitempty"`
	Values      map[string]string `json:"values,omitempty"`
	MissingSlot string            `json:"missing_slot,omitempty"`
}

// Session is the conversation state for one session ID. Callers only
// touch it inside Store.With.
type Session struct {
	ID        string    `json:"session_id"`
	AppID     string    `json:"app_id,omitempty"`
	State     string    `json:"state"`
	History   []Turn    `json:"history,omitempty"`
	Pending   Pending   `json:"pending"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AddTurn appends a turn with the given role and message.
func (s *Session) AddTurn(role, message, turnType string, at time.Time) {
	s.History = append(s.History, Turn{Role: role, Message: message, Type: turnType, Timestamp: at})
}

// ClearPending resets the clarification payload and returns the session to
// plain message handling.
func (s *Session) ClearPending() {
	s.Pending = Pending{}
	s.State = StateAwaitingMessage
}

// clone copies the session deeply enough that the copy can be read while
// the original keeps mutating under its entry lock.
func (s *Session) clone() *Session {
	out := *s
	out.History = append([]Turn(nil), s.History...)
	out.Pending.Candidates = append([]string(nil), s.Pending.Candidates...)
	if s.Pending.Values != nil {
		out.Pending.Values = make(map[string]string, len(s.Pending.Values))
		for k, v := range s.Pending.Values {
			out.Pending.Values[k] = v
		}
	}
	return &out
}

type entry struct {
	mu      sync.Mutex
	session *Session
	closed  atomic.Bool
}

// Store holds sessions in memory with a TTL sweep. Each session has its
// own mutex; the registry lock is only held for map access.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewStore creates a store. Sessions idle longer than ttl are removed by
// the sweeper; a non-positive ttl disables expiry.
func NewStore(ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Create registers a new session and returns its ID.
func (st *Store) Create() string {
	id := uuid.NewString()
	now := st.now()
	s := &Session{
		ID:        id,
		State:     StateAwaitingMessage,
		CreatedAt: now,
		UpdatedAt: now,
	}
	st.mu.Lock()
	st.sessions[id] = &entry{session: s}
	st.mu.Unlock()
	return id
}

// With runs fn with exclusive access to the session. The lock is held for
// the whole call, so concurrent requests for one session serialize. If the
// session was closed before fn ran, or while fn was running, the result is
// discarded and ErrClosed is returned.
func (st *Store) With(id string, fn func(*Session) error) error {
	st.mu.RLock()
	e, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return ErrClosed
	}

	err := fn(e.session)

	// A Close that raced with fn wins: the caller must not deliver
	// results computed for a closed session.
	if e.closed.Load() {
		return ErrClosed
	}
	if err == nil {
		e.session.UpdatedAt = st.now()
	}
	return err
}

// Close marks the session closed immediately, without waiting for its
// lock. An in-flight With call observes the flag and discards its result.
func (st *Store) Close(id string) error {
	st.mu.RLock()
	e, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	e.closed.Store(true)
	return nil
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Start launches the TTL sweeper. Stop terminates it.
func (st *Store) Start(interval time.Duration) {
	if !st.started.CompareAndSwap(false, true) {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		defer close(st.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-st.stop:
				return
			case <-ticker.C:
				st.sweep()
			}
		}
	}()
}

// Stop shuts the sweeper down and waits for it to exit.
func (st *Store) Stop() {
	st.stopOnce.Do(func() { close(st.stop) })
	if st.started.Load() {
		<-st.done
	}
}

// sweep removes closed and idle sessions. UpdatedAt is written under the
// per-entry mutex, so it is read under that same mutex here; the registry
// lock alone does not order those accesses. Entries are inspected outside
// the registry lock because With's fn may call Create, which takes it.
func (st *Store) sweep() {
	cutoff := st.now().Add(-st.ttl)

	st.mu.RLock()
	entries := make(map[string]*entry, len(st.sessions))
	for id, e := range st.sessions {
		entries[id] = e
	}
	st.mu.RUnlock()

	var expired []string
	for id, e := range entries {
		if e.closed.Load() {
			expired = append(expired, id)
			continue
		}
		if st.ttl <= 0 {
			continue
		}
		e.mu.Lock()
		idle := e.session.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if idle {
			expired = append(expired, id)
		}
	}
	if len(expired) == 0 {
		return
	}

	st.mu.Lock()
	for _, id := range expired {
		if _, ok := st.sessions[id]; ok {
			delete(st.sessions, id)
			st.logger.Debug("session swept", zap.String("session_id", id))
		}
	}
	st.mu.Unlock()
}
