package accesslog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	consent "sanctum/internal/consent/models"
	id "sanctum/pkg/domain"
)

// PostgresStore persists access log entries in PostgreSQL. The table is
// append-only; the message reference uses ON DELETE SET NULL so deleting a
// message never erases the audit trail.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed access log store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("access log entry is required")
	}
	var messageID *uuid.UUID
	if entry.MessageID != nil {
		mid := uuid.UUID(*entry.MessageID)
		messageID = &mid
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO access_log_entries (
			id, conversation_id, message_id, authorizing_user_id,
			authorizing_device_id, feature_used, content_hash,
			ai_model_used, accessed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.ConversationID),
		messageID,
		uuid.UUID(entry.AuthorizingUserID),
		string(entry.AuthorizingDeviceID),
		string(entry.Feature),
		entry.ContentHash,
		entry.AIModel,
		entry.AccessedAt,
	)
	if err != nil {
		return fmt.Errorf("append access log entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByConversation(ctx context.Context, conversationID id.ConversationID, limit int) ([]*Entry, error) {
	query := `
		SELECT id, conversation_id, message_id, authorizing_user_id,
		       authorizing_device_id, feature_used, content_hash,
		       ai_model_used, accessed_at
		FROM access_log_entries
		WHERE conversation_id = $1
		ORDER BY accessed_at DESC
	`
	args := []any{uuid.UUID(conversationID)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list access log entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var entryID, convID, userID uuid.UUID
		var messageID *uuid.UUID
		var deviceID, feature string
		if err := rows.Scan(&entryID, &convID, &messageID, &userID,
			&deviceID, &feature, &entry.ContentHash,
			&entry.AIModel, &entry.AccessedAt); err != nil {
			return nil, fmt.Errorf("scan access log entry: %w", err)
		}
		entry.ID = id.AccessEntryID(entryID)
		entry.ConversationID = id.ConversationID(convID)
		entry.AuthorizingUserID = id.UserID(userID)
		entry.AuthorizingDeviceID = id.DeviceID(deviceID)
		entry.Feature = consent.Feature(feature)
		if messageID != nil {
			mid := id.MessageID(*messageID)
			entry.MessageID = &mid
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access log entries: %w", err)
	}
	return entries, nil
}
