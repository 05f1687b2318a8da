package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// chatSession holds the bounded turn history of one conversation.
// mu must be held while reading or writing history; the orchestrator keeps it
// for a whole exchange so concurrent requests on one session are serialized.
type chatSession struct {
	id           string
	mu           sync.Mutex
	history      []ChatTurn
	lastActivity atomic.Int64
}

func (s *chatSession) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

func (s *chatSession) idleSince() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// turns returns a copy of the history. Caller holds s.mu.
func (s *chatSession) turns() []ChatTurn {
	out := make([]ChatTurn, len(s.history))
	copy(out, s.history)
	return out
}

// appendExchange records one user/assistant pair and drops the oldest pairs
// until the history fits maxTurns. Caller holds s.mu.
func (s *chatSession) appendExchange(user, assistant ChatTurn, maxTurns int) {
	s.history = append(s.history, user, assistant)
	for len(s.history) > maxTurns {
		s.history = s.history[2:]
	}
	// Re-slice into a fresh array once trimming has left dead capacity behind.
	if cap(s.history) > 2*maxTurns {
		s.history = append([]ChatTurn(nil), s.history...)
	}
}

// SessionStoreOptions configures the session store.
type SessionStoreOptions struct {
	MaxSessions     int
	MaxHistoryTurns int
	IdleTTL         time.Duration
	Now             func() time.Time
}

// SessionStore maps session identifiers to chat histories. It holds at most
// MaxSessions sessions, dropping the least recently used one when full, and
// Sweep removes sessions idle for longer than IdleTTL.
type SessionStore struct {
	mu       sync.Mutex
	sessions *simplelru.LRU[string, *chatSession]
	maxTurns int
	idleTTL  time.Duration
	now      func() time.Time

	sweeping bool
}

// NewSessionStore creates a session store, applying defaults for zero options.
func NewSessionStore(opts SessionStoreOptions) (*SessionStore, error) {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.MaxHistoryTurns <= 0 {
		opts.MaxHistoryTurns = DefaultMaxHistoryTurns
	}
	if opts.MaxHistoryTurns%2 != 0 {
		return nil, errors.Errorf("max history turns must be even, got %d", opts.MaxHistoryTurns)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	lru, err := simplelru.NewLRU[string, *chatSession](opts.MaxSessions, func(id string, _ *chatSession) {
		log.Debug().Str("session_id", id).Msg("chat session dropped")
	})
	if err != nil {
		return nil, errors.Wrap(err, "create session lru")
	}

	return &SessionStore{
		sessions: lru,
		maxTurns: opts.MaxHistoryTurns,
		idleTTL:  opts.IdleTTL,
		now:      opts.Now,
	}, nil
}

// Acquire returns the session for id, creating it when it has not been seen.
func (s *SessionStore) Acquire(id string) *chatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sess, ok := s.sessions.Get(id); ok {
		sess.touch(now)
		return sess
	}

	sess := &chatSession{id: id}
	sess.touch(now)
	s.sessions.Add(id, sess)
	return sess
}

// History returns a copy of the stored turns for id.
func (s *SessionStore) History(id string) ([]ChatTurn, bool) {
	s.mu.Lock()
	sess, ok := s.sessions.Peek(id)
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.turns(), true
}

// Delete removes the session. Unknown ids are ignored.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Remove(id)
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Len()
}

// MaxHistoryTurns returns the per-session history cap.
func (s *SessionStore) MaxHistoryTurns() int {
	return s.maxTurns
}

// Sweep drops sessions idle for at least the configured TTL and returns how
// many were removed. Sessions in the middle of an exchange are kept.
func (s *SessionStore) Sweep(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	if now.IsZero() {
		now = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range s.sessions.Keys() {
		sess, ok := s.sessions.Peek(id)
		if !ok || now.Sub(sess.idleSince()) < s.idleTTL {
			continue
		}
		if !sess.mu.TryLock() {
			continue
		}
		s.sessions.Remove(id)
		sess.mu.Unlock()
		removed++
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *SessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}
	s.mu.Lock()
	if s.sweeping {
		s.mu.Unlock()
		return
	}
	s.sweeping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sweeping = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := s.Sweep(now); removed > 0 {
				log.Info().Int("removed", removed).Int("remaining", s.Len()).Msg("swept idle chat sessions")
			}
		}
	}
}
