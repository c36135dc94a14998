// Package intake implements the task intake pipeline: a per-user session
// state machine that accumulates a draft task, stages attachments, and on
// confirmation drives the upload orchestrator and task submission.
package intake

import (
	"sync"

	"github.com/DelureDev/Bitrix-task-bot/internal/staging"
)

// State is the current step of an intake session.
type State int

const (
	// StateTitle waits for the task title.
	StateTitle State = iota
	// StateDescription waits for the task description.
	StateDescription
	// StateAttachments accepts file attachments until the user finishes.
	StateAttachments
	// StateConfirm waits for the final confirm or cancel.
	StateConfirm
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateTitle:
		return "awaiting_title"
	case StateDescription:
		return "awaiting_description"
	case StateAttachments:
		return "awaiting_attachments"
	case StateConfirm:
		return "awaiting_confirmation"
	default:
		return "unknown"
	}
}

// Session is one user's in-progress task draft. It is owned by the Store
// and mutated only through Engine event handlers.
type Session struct {
	TicketID    string
	UserID      int64
	State       State
	Title       string
	Description string
	Files       []staging.StagedFile
}

// Store maps user ids to their live sessions. At most one session exists
// per user; starting a new one discards the old.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[int64]*Session)}
}

// Start creates a fresh session for the user, replacing any existing one.
func (s *Store) Start(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{
		TicketID: staging.NewTicketID(),
		UserID:   userID,
		State:    StateTitle,
	}
	s.sessions[userID] = sess
	return sess
}

// Get returns the user's live session, or nil.
func (s *Store) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[userID]
}

// Clear removes the user's session.
func (s *Store) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
