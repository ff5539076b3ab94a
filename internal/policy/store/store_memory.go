package store

import (
	"context"
	"sync"
	"time"

	consent "sanctum/internal/consent/models"
	"sanctum/internal/policy/models"
	id "sanctum/pkg/domain"
)

// InMemoryStore stores conversation policies in memory for tests and local runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	policies map[id.ConversationID]*models.Policy
}

// New constructs an empty in-memory policy store.
func New() *InMemoryStore {
	return &InMemoryStore{policies: make(map[id.ConversationID]*models.Policy)}
}

func (s *InMemoryStore) Get(_ context.Context, conversationID id.ConversationID) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return clonePolicy(policy), nil
}

func (s *InMemoryStore) Upsert(_ context.Context, policy *models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyPolicy := clonePolicy(policy)
	copyPolicy.UpdatedAt = time.Now()
	s.policies[policy.ConversationID] = copyPolicy
	policy.UpdatedAt = copyPolicy.UpdatedAt
	return nil
}

func (s *InMemoryStore) SetAIAllowed(_ context.Context, conversationID id.ConversationID, allowed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	policy, ok := s.policies[conversationID]
	if !ok {
		return ErrNotFound
	}
	policy.AIAllowed = allowed
	policy.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) DeleteByConversation(_ context.Context, conversationID id.ConversationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, conversationID)
	return nil
}

// clonePolicy returns a deep copy so callers cannot mutate stored state.
func clonePolicy(p *models.Policy) *models.Policy {
	copyPolicy := *p
	copyPolicy.EnabledFeatures = append(consent.FeatureSet(nil), p.EnabledFeatures...)
	if p.ConsentExpiryDays != nil {
		days := *p.ConsentExpiryDays
		copyPolicy.ConsentExpiryDays = &days
	}
	return &copyPolicy
}
