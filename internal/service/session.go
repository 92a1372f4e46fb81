package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kiwigeek/internal/model"
)

// Session is one customer's conversation. All fields are guarded by mu.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	budget     *decimal.Decimal
	history    []model.HistoryEntry
	conv       Conversation
	failures   int
	turns      int64
	lastActive time.Time

	// in-flight turn; a newer BeginTurn cancels it
	inflight int64
	cancel   context.CancelFunc
}

func newSession(id string, conv Conversation) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		CreatedAt:  now,
		conv:       conv,
		history:    []model.HistoryEntry{},
		lastActive: now,
	}
}

// BeginTurn starts a new turn, cancelling any turn still in flight. The
// returned token must be passed to Commit and EndTurn.
func (s *Session) BeginTurn(parent context.Context) (context.Context, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	s.turns++
	s.inflight = s.turns
	s.cancel = cancel
	s.lastActive = time.Now()
	return ctx, s.inflight
}

// EndTurn releases the turn's context
func (s *Session) EndTurn(token int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight == token && s.cancel != nil {
		s.cancel()
		s.cancel = nil
		s.inflight = 0
	}
}

// IsCurrent reports whether token still identifies the in-flight turn
func (s *Session) IsCurrent(token int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight == token
}

// Budget returns the adopted budget, or nil
func (s *Session) Budget() *decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budget == nil {
		return nil
	}
	b := *s.budget
	return &b
}

// Conversation returns the generator conversation bound to the session
func (s *Session) Conversation() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

// TurnCommit is what a finished turn writes back to the session
type TurnCommit struct {
	UserText string
	Reply    string
	Budget   *decimal.Decimal // adopted only if the session has none yet

	// Conversation, when set, replaces the session's conversation
	Conversation Conversation
}

// Commit applies a successful turn if token is still current. Stale results
// are discarded and false is returned.
func (s *Session) Commit(token int64, c TurnCommit) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight != token {
		return false
	}

	now := time.Now()
	if s.budget == nil && c.Budget != nil {
		b := *c.Budget
		s.budget = &b
	}
	if c.Conversation != nil {
		s.conv = c.Conversation
	}
	s.history = append(s.history,
		model.HistoryEntry{Role: "user", Content: c.UserText, CreatedAt: now},
		model.HistoryEntry{Role: "assistant", Content: c.Reply, CreatedAt: now},
	)
	s.failures = 0
	s.lastActive = now
	return true
}

// RecordFailure counts a generator failure for the current turn. The first
// consecutive failure swaps in a fresh conversation from factory. It returns
// the consecutive failure count, or 0 when token is stale.
func (s *Session) RecordFailure(token int64, factory func() Conversation) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight != token {
		return 0
	}

	s.failures++
	if s.failures == 1 && factory != nil {
		s.conv = factory()
	}
	return s.failures
}

// Reset discards budget, history, conversation and any in-flight turn
func (s *Session) Reset(conv Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.inflight = 0
	s.budget = nil
	s.history = []model.HistoryEntry{}
	s.conv = conv
	s.failures = 0
	s.lastActive = time.Now()
}

// View returns a snapshot for presentation
func (s *Session) View() model.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]model.HistoryEntry, len(s.history))
	copy(history, s.history)

	var budget *decimal.Decimal
	if s.budget != nil {
		b := *s.budget
		budget = &b
	}

	return model.SessionView{
		SessionID: s.ID,
		Budget:    budget,
		History:   history,
		Turns:     s.turns,
		CreatedAt: s.CreatedAt,
	}
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight != 0 {
		return time.Now()
	}
	return s.lastActive
}

// SessionStore keeps process-local sessions keyed by id
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  func() Conversation
}

// NewSessionStore creates a store; factory opens a fresh generator conversation
func NewSessionStore(factory func() Conversation) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// NewConversation opens a fresh generator conversation
func (s *SessionStore) NewConversation() Conversation {
	if s.factory == nil {
		return nil
	}
	return s.factory()
}

// GetOrCreate returns the session for id, creating it when missing. An empty
// or malformed id gets a fresh uuid.
func (s *SessionStore) GetOrCreate(id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return sess, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, false
	}
	sess = newSession(id, s.NewConversation())
	s.sessions[id] = sess
	return sess, true
}

// Get returns an existing session
func (s *SessionStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Reset clears an existing session
func (s *SessionStore) Reset(id string) (*Session, error) {
	sess, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	sess.Reset(s.NewConversation())
	return sess, nil
}

// Len returns the number of live sessions
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Prune drops sessions idle for longer than maxIdle and returns how many were removed
func (s *SessionStore) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
