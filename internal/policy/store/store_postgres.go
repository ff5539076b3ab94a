package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	consent "sanctum/internal/consent/models"
	"sanctum/internal/policy/models"
	id "sanctum/pkg/domain"
)

// PostgresStore persists conversation policies in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed policy store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, conversationID id.ConversationID) (*models.Policy, error) {
	query := `
		SELECT conversation_id, ai_allowed, consent_rule, enabled_features,
		       consent_expiry_days, updated_at
		FROM conversation_ai_policies
		WHERE conversation_id = $1
	`
	row := s.db.QueryRowContext(ctx, query, uuid.UUID(conversationID))

	var policy models.Policy
	var cid uuid.UUID
	var rule string
	var features []byte
	var expiryDays sql.NullInt64
	if err := row.Scan(&cid, &policy.AIAllowed, &rule, &features, &expiryDays, &policy.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	policy.ConversationID = id.ConversationID(cid)
	policy.Rule = models.ConsentRule(rule)

	var raw []string
	if len(features) > 0 {
		if err := json.Unmarshal(features, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal enabled features: %w", err)
		}
	}
	set, bad, ok := consent.ParseFeatureSet(raw)
	if !ok {
		return nil, fmt.Errorf("stored feature %q is not recognized", bad)
	}
	policy.EnabledFeatures = set

	if expiryDays.Valid {
		days := int(expiryDays.Int64)
		policy.ConsentExpiryDays = &days
	}
	return &policy, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, policy *models.Policy) error {
	if policy == nil {
		return fmt.Errorf("policy is required")
	}
	features, err := json.Marshal(policy.EnabledFeatures.Strings())
	if err != nil {
		return fmt.Errorf("marshal enabled features: %w", err)
	}
	var expiryDays *int64
	if policy.ConsentExpiryDays != nil {
		days := int64(*policy.ConsentExpiryDays)
		expiryDays = &days
	}
	query := `
		INSERT INTO conversation_ai_policies (
			conversation_id, ai_allowed, consent_rule, enabled_features,
			consent_expiry_days, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (conversation_id) DO UPDATE SET
			ai_allowed          = EXCLUDED.ai_allowed,
			consent_rule        = EXCLUDED.consent_rule,
			enabled_features    = EXCLUDED.enabled_features,
			consent_expiry_days = EXCLUDED.consent_expiry_days,
			updated_at          = now()
		RETURNING updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		uuid.UUID(policy.ConversationID),
		policy.AIAllowed,
		string(policy.Rule),
		features,
		expiryDays,
	).Scan(&policy.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert policy: %w", err)
	}
	return nil
}

// SetAIAllowed flips only the cached authorization flag. Revocation under a
// unanimous rule uses this for immediate deauthorization: a single-row write
// that cannot lose a race against a slower full recompute.
func (s *PostgresStore) SetAIAllowed(ctx context.Context, conversationID id.ConversationID, allowed bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_ai_policies
		SET ai_allowed = $2, updated_at = now()
		WHERE conversation_id = $1
	`, uuid.UUID(conversationID), allowed)
	if err != nil {
		return fmt.Errorf("set ai_allowed: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set ai_allowed rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByConversation(ctx context.Context, conversationID id.ConversationID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_ai_policies WHERE conversation_id = $1`, uuid.UUID(conversationID))
	if err != nil {
		return fmt.Errorf("delete policy by conversation: %w", err)
	}
	return nil
}
