package accesslog

import (
	"context"

	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// ErrNotFound keeps storage-specific 404s consistent across implementations.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "access log entry not found")

// Store is the append-only persistence interface for access log entries.
// There is deliberately no update or delete: entries are write-once and
// retained indefinitely (retention policy is out of scope).
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	ListByConversation(ctx context.Context, conversationID id.ConversationID, limit int) ([]*Entry, error)
}
