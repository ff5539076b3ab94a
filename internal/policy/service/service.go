// Package service maintains the per-conversation AI policy, including the
// denormalized aiAllowed flag that callers use as a fast deny path.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	consentmodels "sanctum/internal/consent/models"
	"sanctum/internal/evaluator"
	"sanctum/internal/policy/models"
	"sanctum/internal/policy/store"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// ConsentReader is the slice of the consent store recompute needs.
type ConsentReader interface {
	ListByConversation(ctx context.Context, conversationID id.ConversationID) ([]*consentmodels.ConsentRecord, error)
}

// Directory supplies the authoritative participant count.
type Directory interface {
	Count(ctx context.Context, conversationID id.ConversationID) (int, error)
}

// Service owns policy reads, writes, and cache recomputation.
type Service struct {
	policies store.Store
	consents ConsentReader
	members  Directory
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source, for tests exercising expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a policy service.
func NewService(policies store.Store, consents ConsentReader, members Directory, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		policies: policies,
		consents: consents,
		members:  members,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Find returns the stored policy, or (nil, nil) when the conversation has
// none. The evaluator treats a nil policy as AI disabled, so authoritative
// checks go through Find rather than Get.
func (s *Service) Find(ctx context.Context, conversationID id.ConversationID) (*models.Policy, error) {
	if conversationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "conversation ID required")
	}
	policy, err := s.policies.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to read policy")
	}
	return policy, nil
}

// Get returns the stored policy, or the implicit default (AI disabled,
// unanimous, mention responses only) when the conversation has none.
func (s *Service) Get(ctx context.Context, conversationID id.ConversationID) (*models.Policy, error) {
	if conversationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "conversation ID required")
	}
	policy, err := s.policies.Get(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Default(conversationID), nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to read policy")
	}
	return policy, nil
}

// Set applies a partial update to the conversation's settings. It never
// re-runs evaluation; a rule change takes effect on the next grant, revoke,
// or authoritative evaluate call.
func (s *Service) Set(ctx context.Context, conversationID id.ConversationID, patch models.Patch) (*models.Policy, error) {
	policy, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	policy.Apply(patch)
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if err := s.policies.Upsert(ctx, policy); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to save policy")
	}
	return policy, nil
}

// Recompute re-derives the cached aiAllowed flag after a consent change.
// When the requested feature's consent now satisfies the rule, the feature is
// merged into the enabled set; aiAllowed becomes true when any enabled
// feature satisfies the rule. Insufficient consent is a normal false result,
// never an error, and the whole operation is idempotent and safe to retry.
//
// The policy row is only created once a grant first pushes the conversation
// into a could-now-enable-AI condition; before that, absence already means
// "AI disabled" and there is nothing to cache.
func (s *Service) Recompute(ctx context.Context, conversationID id.ConversationID, feature consentmodels.Feature) (bool, error) {
	policy, err := s.policies.Get(ctx, conversationID)
	existed := true
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return false, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to read policy")
		}
		existed = false
		policy = models.Default(conversationID)
	}

	records, err := s.consents.ListByConversation(ctx, conversationID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to list consent records")
	}
	participants, err := s.members.Count(ctx, conversationID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to count participants")
	}

	now := s.now()

	// The enabled-feature gate is skipped here on purpose: recompute runs in
	// response to a grant, and that grant may be the one that turns the
	// feature on for the first time.
	featureSatisfied := policy.Rule.Satisfied(evaluator.Tally(records, feature, now), participants)

	enabled := policy.EnabledFeatures
	if featureSatisfied {
		enabled = enabled.Merge(feature)
	}

	aiAllowed := false
	for _, f := range enabled {
		if policy.Rule.Satisfied(evaluator.Tally(records, f, now), participants) {
			aiAllowed = true
			break
		}
	}

	if !existed && !aiAllowed {
		return false, nil
	}
	if existed && policy.AIAllowed == aiAllowed && policy.EnabledFeatures.Equal(enabled) {
		return aiAllowed, nil
	}

	policy.AIAllowed = aiAllowed
	policy.EnabledFeatures = enabled
	if err := s.policies.Upsert(ctx, policy); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to save recomputed policy")
	}

	s.log(ctx, "policy recomputed",
		"conversation_id", conversationID.String(),
		"feature", string(feature),
		"ai_allowed", aiAllowed,
		"participants", participants,
	)
	return aiAllowed, nil
}

// Deauthorize forces the cached aiAllowed flag to false with a single write.
// Used on revoke under a unanimous rule: must-deny takes effect immediately,
// without waiting for a full recompute pass. A missing policy row already
// means AI disabled, so it is treated as done.
func (s *Service) Deauthorize(ctx context.Context, conversationID id.ConversationID) error {
	err := s.policies.SetAIAllowed(ctx, conversationID, false)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to deauthorize conversation")
	}
	return nil
}

func (s *Service) log(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, args...)
	}
}
