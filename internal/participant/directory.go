// Package participant exposes the conversation membership list this service
// treats as ground truth. Membership itself is owned by the messaging layer;
// the evaluator only needs counts and membership checks from it.
package participant

import (
	"context"

	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "conversation not found")

// Directory answers membership questions for a conversation.
//
// Error Contract:
// - Count returns 0 with no error for an unknown conversation; the evaluator
//   denies on zero participants, which is the correct fail-closed outcome
// - IsMember returns false with no error for unknown conversations or users
type Directory interface {
	Count(ctx context.Context, conversationID id.ConversationID) (int, error)
	IsMember(ctx context.Context, conversationID id.ConversationID, userID id.UserID) (bool, error)
	List(ctx context.Context, conversationID id.ConversationID) ([]id.UserID, error)
}
