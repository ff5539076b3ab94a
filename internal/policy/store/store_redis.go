package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	consent "sanctum/internal/consent/models"
	"sanctum/internal/policy/models"
	id "sanctum/pkg/domain"
)

const (
	policyKeyPrefix = "policy:"

	// defaultCacheTTL bounds staleness for reads that bypass invalidation
	// (e.g. a crashed writer). Writes always invalidate explicitly.
	defaultCacheTTL = 5 * time.Minute
)

// policyJSON is the JSON-serializable representation of a Policy.
type policyJSON struct {
	ConversationID    string   `json:"conversation_id"`
	AIAllowed         bool     `json:"ai_allowed"`
	Rule              string   `json:"consent_rule"`
	EnabledFeatures   []string `json:"enabled_features"`
	ConsentExpiryDays *int     `json:"consent_expiry_days,omitempty"`
	UpdatedAt         int64    `json:"updated_at"` // Unix nano
}

// CachedStore layers a Redis read-through cache over another policy store.
// The cache only ever serves the fast path; authoritative evaluation always
// recomputes from consent records, so a stale aiAllowed=true here can only
// produce an allow that the evaluator then overrides.
type CachedStore struct {
	inner  Store
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewCached wraps inner with a Redis cache. TTL <= 0 uses the default.
func NewCached(inner Store, client *redis.Client, logger *slog.Logger, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{inner: inner, client: client, logger: logger, ttl: ttl}
}

func (s *CachedStore) Get(ctx context.Context, conversationID id.ConversationID) (*models.Policy, error) {
	key := policyKeyPrefix + conversationID.String()
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		policy, decodeErr := policyFromJSON(payload)
		if decodeErr == nil {
			return policy, nil
		}
		s.logWarn(ctx, "discarding undecodable cached policy", "conversation_id", conversationID.String(), "error", decodeErr)
	} else if !errors.Is(err, redis.Nil) {
		// Cache unavailable: fall through to the durable store.
		s.logWarn(ctx, "policy cache read failed", "conversation_id", conversationID.String(), "error", err)
	}

	policy, err := s.inner.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.fill(ctx, key, policy)
	return policy, nil
}

func (s *CachedStore) Upsert(ctx context.Context, policy *models.Policy) error {
	if err := s.inner.Upsert(ctx, policy); err != nil {
		return err
	}
	return s.invalidate(ctx, policy.ConversationID)
}

func (s *CachedStore) SetAIAllowed(ctx context.Context, conversationID id.ConversationID, allowed bool) error {
	if err := s.inner.SetAIAllowed(ctx, conversationID, allowed); err != nil {
		return err
	}
	return s.invalidate(ctx, conversationID)
}

func (s *CachedStore) DeleteByConversation(ctx context.Context, conversationID id.ConversationID) error {
	if err := s.inner.DeleteByConversation(ctx, conversationID); err != nil {
		return err
	}
	return s.invalidate(ctx, conversationID)
}

// invalidate drops the cached entry after a durable write. Failure surfaces
// to the caller: a stale cached allow is the security-critical direction, so
// the write is not reported successful until the cache agrees.
func (s *CachedStore) invalidate(ctx context.Context, conversationID id.ConversationID) error {
	key := policyKeyPrefix + conversationID.String()
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("invalidate policy cache: %w", err)
	}
	return nil
}

// fill populates the cache best-effort; a failed fill only costs a future read.
func (s *CachedStore) fill(ctx context.Context, key string, policy *models.Policy) {
	payload, err := json.Marshal(policyToJSON(policy))
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		s.logWarn(ctx, "policy cache fill failed", "key", key, "error", err)
	}
}

func (s *CachedStore) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, args...)
	}
}

func policyToJSON(p *models.Policy) *policyJSON {
	return &policyJSON{
		ConversationID:    p.ConversationID.String(),
		AIAllowed:         p.AIAllowed,
		Rule:              string(p.Rule),
		EnabledFeatures:   p.EnabledFeatures.Strings(),
		ConsentExpiryDays: p.ConsentExpiryDays,
		UpdatedAt:         p.UpdatedAt.UnixNano(),
	}
}

func policyFromJSON(payload []byte) (*models.Policy, error) {
	var j policyJSON
	if err := json.Unmarshal(payload, &j); err != nil {
		return nil, err
	}
	conversationID, err := id.ParseConversationID(j.ConversationID)
	if err != nil {
		return nil, err
	}
	set, bad, ok := consent.ParseFeatureSet(j.EnabledFeatures)
	if !ok {
		return nil, fmt.Errorf("cached feature %q is not recognized", bad)
	}
	return &models.Policy{
		ConversationID:    conversationID,
		AIAllowed:         j.AIAllowed,
		Rule:              models.ConsentRule(j.Rule),
		EnabledFeatures:   set,
		ConsentExpiryDays: j.ConsentExpiryDays,
		UpdatedAt:         time.Unix(0, j.UpdatedAt),
	}, nil
}
