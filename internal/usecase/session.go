package usecase

import (
	"sync"
	"time"

	"llm-proxy/internal/domain"
)

// DefaultSessionID names the session used when callers pass no session
// identifier.
const DefaultSessionID = "default"

// maxHistoryMessages bounds the per-session history window. When an exchange
// pushes the history past the bound, the oldest messages are dropped.
const maxHistoryMessages = 20

// Session holds the message history of one conversation. All mutation goes
// through the session's own lock, so concurrent exchanges on the same session
// interleave appends instead of overwriting each other.
type Session struct {
	mu        sync.Mutex
	id        string
	messages  []domain.Message
	createdAt time.Time
	updatedAt time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Messages returns a copy of the current history window.
func (s *Session) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// AppendExchange appends a completed user/assistant turn and trims the
// history to the most recent window.
func (s *Session) AppendExchange(user, assistant domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, user, assistant)
	if len(s.messages) > maxHistoryMessages {
		s.messages = s.messages[len(s.messages)-maxHistoryMessages:]
	}
	s.updatedAt = time.Now()
}

// Clear drops the session history.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.updatedAt = time.Now()
}

// SessionStore hands out sessions by identifier, creating them lazily on
// first use.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Get returns the session for id, creating it if needed. An empty id maps to
// the default session.
func (st *SessionStore) Get(id string) *Session {
	if id == "" {
		id = DefaultSessionID
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[id]
	if !ok {
		sess = &Session{id: id, createdAt: time.Now()}
		st.sessions[id] = sess
	}
	return sess
}

// Len returns the number of live sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
