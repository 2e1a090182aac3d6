package importer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type State string

const (
	StateIdle      State = "idle"
	StatePreviewed State = "previewed"
	StateConfirmed State = "confirmed"
	StateCancelled State = "cancelled"
)

// transitions lists the legal moves of an import session.
var transitions = map[State][]State{
	StateIdle:      {StatePreviewed, StateCancelled},
	StatePreviewed: {StateConfirmed, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Session is one upload moving through preview and confirmation.
type Session struct {
	ID        uuid.UUID     `json:"session_id"`
	State     State         `json:"state"`
	Filename  string        `json:"filename"`
	Format    string        `json:"format"`
	Summary   *Summary      `json:"summary,omitempty"`
	Result    *CommitResult `json:"result,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	rows      []Row
	lines     []int
}

// SessionStore keeps sessions in memory until they expire.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration, now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{sessions: make(map[uuid.UUID]*Session), ttl: ttl, now: now}
}

// Create registers a new idle session holding rows.
func (s *SessionStore) Create(filename, format string, rows []Row, lines []int) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	sess := &Session{
		ID:        uuid.New(),
		State:     StateIdle,
		Filename:  filename,
		Format:    format,
		CreatedAt: s.now(),
		rows:      rows,
		lines:     lines,
	}
	s.sessions[sess.ID] = sess
	return *sess
}

func (s *SessionStore) Get(id uuid.UUID) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return *sess, nil
}

// Transition moves a session from one state to another atomically.
func (s *SessionStore) Transition(id uuid.UUID, from, to State) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(id)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	if sess.State != from || !canTransition(from, to) {
		return Session{}, fmt.Errorf("%w: %s -> %s (session is %s)", ErrInvalidTransition, from, to, sess.State)
	}
	sess.State = to
	return *sess, nil
}

// SetSummary stores the preview summary.
func (s *SessionStore) SetSummary(id uuid.UUID, summary *Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Summary = summary
	}
}

// SetResult stores the commit result and releases the parsed rows.
func (s *SessionStore) SetResult(id uuid.UUID, result *CommitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Result = result
		sess.rows = nil
		sess.lines = nil
	}
}

func (s *SessionStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *SessionStore) live(id uuid.UUID) (*Session, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.ttl > 0 && s.now().Sub(sess.CreatedAt) > s.ttl {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

func (s *SessionStore) sweepLocked() {
	if s.ttl <= 0 {
		return
	}
	now := s.now()
	for id, sess := range s.sessions {
		if now.Sub(sess.CreatedAt) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
