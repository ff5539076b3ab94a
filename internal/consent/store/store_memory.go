package store

import (
	"context"
	"sync"

	"sanctum/internal/consent/models"
	id "sanctum/pkg/domain"
)

// InMemoryStore stores consent records in memory for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.ConversationID]map[id.UserID]*models.ConsentRecord
}

// New constructs an empty in-memory consent store.
func New() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.ConversationID]map[id.UserID]*models.ConsentRecord)}
}

func (s *InMemoryStore) Upsert(_ context.Context, record *models.ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.records[record.ConversationID]
	if !ok {
		byUser = make(map[id.UserID]*models.ConsentRecord)
		s.records[record.ConversationID] = byUser
	}
	if existing, ok := byUser[record.UserID]; ok {
		record.CreatedAt = existing.CreatedAt
	}
	copyRecord := cloneRecord(record)
	byUser[record.UserID] = copyRecord
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, conversationID id.ConversationID, userID id.UserID) (*models.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[conversationID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(record), nil
}

func (s *InMemoryStore) ListByConversation(_ context.Context, conversationID id.ConversationID) ([]*models.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser := s.records[conversationID]
	records := make([]*models.ConsentRecord, 0, len(byUser))
	for _, record := range byUser {
		records = append(records, cloneRecord(record))
	}
	return records, nil
}

func (s *InMemoryStore) DeleteByConversation(_ context.Context, conversationID id.ConversationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, conversationID)
	return nil
}

// cloneRecord returns a deep copy so callers cannot mutate stored state.
func cloneRecord(r *models.ConsentRecord) *models.ConsentRecord {
	copyRecord := *r
	copyRecord.AllowedFeatures = append(models.FeatureSet(nil), r.AllowedFeatures...)
	return &copyRecord
}
