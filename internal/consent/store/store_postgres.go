package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sanctum/internal/consent/models"
	id "sanctum/pkg/domain"
)

// PostgresStore persists consent records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx constructs a PostgreSQL-backed consent store bound to a transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{tx: tx}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer() dbExecutor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *PostgresStore) Upsert(ctx context.Context, record *models.ConsentRecord) error {
	if record == nil {
		return fmt.Errorf("consent record is required")
	}
	features, err := json.Marshal(record.AllowedFeatures.Strings())
	if err != nil {
		return fmt.Errorf("marshal allowed features: %w", err)
	}
	query := `
		INSERT INTO consent_records (
			conversation_id, user_id, status, allowed_features,
			granted_at, expires_at, denied_reason, granting_device_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		ON CONFLICT (conversation_id, user_id) DO UPDATE SET
			status             = EXCLUDED.status,
			allowed_features   = EXCLUDED.allowed_features,
			granted_at         = EXCLUDED.granted_at,
			expires_at         = EXCLUDED.expires_at,
			denied_reason      = EXCLUDED.denied_reason,
			granting_device_id = EXCLUDED.granting_device_id,
			updated_at         = now()
		RETURNING created_at, updated_at
	`
	err = s.execer().QueryRowContext(ctx, query,
		uuid.UUID(record.ConversationID),
		uuid.UUID(record.UserID),
		string(record.Status),
		features,
		record.GrantedAt,
		record.ExpiresAt,
		record.DeniedReason,
		string(record.GrantingDeviceID),
	).Scan(&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, conversationID id.ConversationID, userID id.UserID) (*models.ConsentRecord, error) {
	query := selectConsent + ` WHERE conversation_id = $1 AND user_id = $2`
	record, err := scanConsent(s.execer().QueryRowContext(ctx, query, uuid.UUID(conversationID), uuid.UUID(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find consent record: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByConversation(ctx context.Context, conversationID id.ConversationID) ([]*models.ConsentRecord, error) {
	query := selectConsent + ` WHERE conversation_id = $1 ORDER BY created_at`
	rows, err := s.execer().QueryContext(ctx, query, uuid.UUID(conversationID))
	if err != nil {
		return nil, fmt.Errorf("list consent records: %w", err)
	}
	defer rows.Close()

	var records []*models.ConsentRecord
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) DeleteByConversation(ctx context.Context, conversationID id.ConversationID) error {
	_, err := s.execer().ExecContext(ctx,
		`DELETE FROM consent_records WHERE conversation_id = $1`, uuid.UUID(conversationID))
	if err != nil {
		return fmt.Errorf("delete consent records by conversation: %w", err)
	}
	return nil
}

const selectConsent = `
	SELECT conversation_id, user_id, status, allowed_features,
	       granted_at, expires_at, denied_reason, granting_device_id,
	       created_at, updated_at
	FROM consent_records
`

type consentRow interface {
	Scan(dest ...any) error
}

func scanConsent(row consentRow) (*models.ConsentRecord, error) {
	var record models.ConsentRecord
	var conversationID, userID uuid.UUID
	var status string
	var features []byte
	var grantedAt, expiresAt sql.NullTime
	var deniedReason sql.NullString
	var deviceID string
	if err := row.Scan(&conversationID, &userID, &status, &features,
		&grantedAt, &expiresAt, &deniedReason, &deviceID,
		&record.CreatedAt, &record.UpdatedAt); err != nil {
		return nil, err
	}
	record.ConversationID = id.ConversationID(conversationID)
	record.UserID = id.UserID(userID)
	record.Status = models.Status(status)
	record.GrantingDeviceID = id.DeviceID(deviceID)

	var raw []string
	if len(features) > 0 {
		if err := json.Unmarshal(features, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal allowed features: %w", err)
		}
	}
	set, bad, ok := models.ParseFeatureSet(raw)
	if !ok {
		return nil, fmt.Errorf("stored feature %q is not recognized", bad)
	}
	record.AllowedFeatures = set

	if grantedAt.Valid {
		record.GrantedAt = &grantedAt.Time
	}
	if expiresAt.Valid {
		record.ExpiresAt = &expiresAt.Time
	}
	if deniedReason.Valid {
		record.DeniedReason = &deniedReason.String
	}
	return &record, nil
}
