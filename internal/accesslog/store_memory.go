package accesslog

import (
	"context"
	"sync"

	id "sanctum/pkg/domain"
)

// InMemoryStore keeps access log entries in memory for tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.ConversationID][]*Entry
}

// NewInMemoryStore constructs an empty in-memory access log store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.ConversationID][]*Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyEntry := *entry
	s.entries[entry.ConversationID] = append(s.entries[entry.ConversationID], &copyEntry)
	return nil
}

func (s *InMemoryStore) ListByConversation(_ context.Context, conversationID id.ConversationID, limit int) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.entries[conversationID]
	// Newest first, like the Postgres implementation.
	out := make([]*Entry, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		copyEntry := *stored[i]
		out = append(out, &copyEntry)
	}
	return out, nil
}
