// Package transcript holds the in-memory chat transcript of one session.
package transcript

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diogo/localchat/internal/models"
)

// Store is an ordered, append-only list of messages. Individual messages
// can only be removed by ID; everything else goes through Clear.
type Store struct {
	mu       sync.RWMutex
	messages []models.Message
	version  uint64
	now      func() time.Time
}

// NewStore creates an empty transcript
func NewStore() *Store {
	return &Store{now: time.Now}
}

// newID returns a UUIDv7: a millisecond timestamp followed by random bits
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Append adds a message and returns its fresh ID
func (s *Store) Append(role models.Role, content string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := newID()
	s.messages = append(s.messages, models.Message{
		ID:        id,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	})
	s.version++
	return id
}

// Remove deletes the message with the given ID. It reports whether a
// message was removed; an unknown ID is not an error.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			s.version++
			return true
		}
	}
	return false
}

// Clear removes every message
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.version++
}

// Messages returns a copy of the transcript in insertion order
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recent message with the given role
func (s *Store) Last(role models.Role) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == role {
			return s.messages[i], true
		}
	}
	return models.Message{}, false
}

// Version changes on every mutation
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}
