package participant

import (
	"context"
	"sync"

	id "sanctum/pkg/domain"
)

// InMemoryDirectory holds conversation membership in memory for tests and
// local runs. Add/Remove mirror the membership events the messaging layer
// would deliver in production.
type InMemoryDirectory struct {
	mu      sync.RWMutex
	members map[id.ConversationID]map[id.UserID]struct{}
}

// NewInMemory constructs an empty in-memory directory.
func NewInMemory() *InMemoryDirectory {
	return &InMemoryDirectory{members: make(map[id.ConversationID]map[id.UserID]struct{})}
}

// Add registers a participant in a conversation.
func (d *InMemoryDirectory) Add(conversationID id.ConversationID, userID id.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	byUser, ok := d.members[conversationID]
	if !ok {
		byUser = make(map[id.UserID]struct{})
		d.members[conversationID] = byUser
	}
	byUser[userID] = struct{}{}
}

// Remove drops a participant from a conversation.
func (d *InMemoryDirectory) Remove(conversationID id.ConversationID, userID id.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members[conversationID], userID)
}

func (d *InMemoryDirectory) Count(_ context.Context, conversationID id.ConversationID) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.members[conversationID]), nil
}

func (d *InMemoryDirectory) IsMember(_ context.Context, conversationID id.ConversationID, userID id.UserID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.members[conversationID][userID]
	return ok, nil
}

func (d *InMemoryDirectory) List(_ context.Context, conversationID id.ConversationID) ([]id.UserID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byUser := d.members[conversationID]
	users := make([]id.UserID, 0, len(byUser))
	for userID := range byUser {
		users = append(users, userID)
	}
	return users, nil
}
