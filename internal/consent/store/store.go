package store

import (
	"context"

	"sanctum/internal/consent/models"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "consent record not found")

// Store defines the persistence interface for consent records.
//
// Error Contract:
// - Find returns ErrNotFound when no record exists for the scope
// - Other methods return nil on success or wrapped errors on failure
//
// Upsert is keyed by (conversationID, userID) so concurrent writers for
// different users never conflict. Concurrent writers for the same pair
// serialize on the underlying row; last-writer-wins on status is acceptable
// because only the owning user can write their own record.
type Store interface {
	Upsert(ctx context.Context, record *models.ConsentRecord) error
	Find(ctx context.Context, conversationID id.ConversationID, userID id.UserID) (*models.ConsentRecord, error)
	ListByConversation(ctx context.Context, conversationID id.ConversationID) ([]*models.ConsentRecord, error)
	DeleteByConversation(ctx context.Context, conversationID id.ConversationID) error
}
