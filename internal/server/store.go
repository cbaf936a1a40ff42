package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pixelkit/bgremover/pkg/session"
)

// Factory creates a fresh session for a new visitor
type Factory func() *session.Session

type entry struct {
	sess     *session.Session
	lastSeen time.Time
}

// store keeps one in-memory session per visitor. Sessions idle for longer
// than ttl are closed by sweep; a zero ttl keeps them until shutdown.
type store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	factory  Factory
	ttl      time.Duration
	now      func() time.Time
}

func newStore(factory Factory, ttl time.Duration) *store {
	return &store{
		sessions: make(map[string]*entry),
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
	}
}

// lookup returns the session for id without creating one
func (s *store) lookup(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.sess, true
}

// get returns the session for id, creating one when id is unknown
func (s *store) get(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.sessions[id]; ok {
		e.lastSeen = now
		return e.sess, false
	}
	sess := s.factory()
	s.sessions[sess.ID()] = &entry{sess: sess, lastSeen: now}
	return sess, true
}

func (s *store) remove(id string) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if ok {
		e.sess.Close()
	}
}

// sweep closes sessions idle for longer than ttl and returns how many went.
// A session still waiting on the processing service is kept.
func (s *store) sweep() int {
	if s.ttl <= 0 {
		return 0
	}

	s.mu.Lock()
	cutoff := s.now().Add(-s.ttl)
	var expired []*session.Session
	for id, e := range s.sessions {
		if e.lastSeen.After(cutoff) || e.sess.Status() == session.StatusProcessing {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, e.sess)
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.Close()
		slog.Info("http_session_expired", "session_id", sess.ID())
	}
	return len(expired)
}

func (s *store) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *store) closeAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range sessions {
		e.sess.Close()
	}
}
