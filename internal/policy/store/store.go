package store

import (
	"context"

	"sanctum/internal/policy/models"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "conversation policy not found")

// Store defines the persistence interface for conversation AI policies.
//
// Error Contract:
// - Get returns ErrNotFound when the conversation has no stored policy;
//   callers substitute models.Default, which keeps AI disabled
// - SetAIAllowed returns ErrNotFound when there is no row to update; with no
//   stored policy AI is already disabled, so deauthorization treats that as done
type Store interface {
	Get(ctx context.Context, conversationID id.ConversationID) (*models.Policy, error)
	Upsert(ctx context.Context, policy *models.Policy) error
	SetAIAllowed(ctx context.Context, conversationID id.ConversationID, allowed bool) error
	DeleteByConversation(ctx context.Context, conversationID id.ConversationID) error
}
