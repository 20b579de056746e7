package history

import (
	"sync"

	"github.com/mfateev/llm-relay-bot/internal/models"
)

// InMemoryStore is the process-lifetime implementation of Store.
//
// The map lock only guards entry lookup and creation. Each user entry has its
// own mutex, held for a single copy or slice mutation.
type InMemoryStore struct {
	window int

	mu      sync.RWMutex
	entries map[models.UserID]*entry
}

type entry struct {
	mu    sync.Mutex
	turns []models.ConversationTurn
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty store retaining at most window turns per
// user. A non-positive window falls back to DefaultWindow.
func NewInMemoryStore(window int) *InMemoryStore {
	if window <= 0 {
		window = DefaultWindow
	}
	return &InMemoryStore{
		window:  window,
		entries: make(map[models.UserID]*entry),
	}
}

// Window returns the retention bound.
func (s *InMemoryStore) Window() int {
	return s.window
}

// lookup returns the user's entry, creating it when create is set.
// Entries are never removed, so a pointer stays valid after the map lock is
// released.
func (s *InMemoryStore) lookup(userID models.UserID, create bool) *entry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[userID]; ok {
		return e
	}
	e = &entry{}
	s.entries[userID] = e
	return e
}

// Snapshot returns a copy of the user's history.
func (s *InMemoryStore) Snapshot(userID models.UserID) []models.ConversationTurn {
	e := s.lookup(userID, false)
	if e == nil {
		return []models.ConversationTurn{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]models.ConversationTurn, len(e.turns))
	copy(result, e.turns)
	return result
}

// Append adds turns and trims the history to the window, oldest first.
func (s *InMemoryStore) Append(userID models.UserID, turns ...models.ConversationTurn) {
	if len(turns) == 0 {
		return
	}
	e := s.lookup(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.turns = append(e.turns, turns...)
	if over := len(e.turns) - s.window; over > 0 {
		// Copy into a fresh slice so evicted turns are not pinned by the
		// backing array.
		kept := make([]models.ConversationTurn, s.window)
		copy(kept, e.turns[over:])
		e.turns = kept
	}
}

// Clear removes all turns for the user.
func (s *InMemoryStore) Clear(userID models.UserID) {
	e := s.lookup(userID, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = nil
}

// Len returns the number of retained turns for the user.
func (s *InMemoryStore) Len(userID models.UserID) int {
	e := s.lookup(userID, false)
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.turns)
}
