package participant

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "sanctum/pkg/domain"
)

// PostgresDirectory reads conversation membership from the
// conversation_participants table the messaging layer maintains.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed participant directory.
func NewPostgres(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Count(ctx context.Context, conversationID id.ConversationID) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT count(*) FROM conversation_participants WHERE conversation_id = $1`,
		uuid.UUID(conversationID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}

func (d *PostgresDirectory) IsMember(ctx context.Context, conversationID id.ConversationID, userID id.UserID) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, uuid.UUID(conversationID), uuid.UUID(userID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (d *PostgresDirectory) List(ctx context.Context, conversationID id.ConversationID) ([]id.UserID, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants WHERE conversation_id = $1 ORDER BY joined_at`,
		uuid.UUID(conversationID))
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var users []id.UserID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		users = append(users, id.UserID(userID))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return users, nil
}
