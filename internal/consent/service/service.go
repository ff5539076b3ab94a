// Package service implements the consent lifecycle state machine: the
// user-facing grant, deny, and revoke transitions, status reads, and the
// authoritative evaluation entry point that gates AI access to plaintext.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sanctum/internal/consent/metrics"
	"sanctum/internal/consent/models"
	"sanctum/internal/consent/store"
	"sanctum/internal/evaluator"
	policymodels "sanctum/internal/policy/models"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// Store defines the persistence interface for consent records.
// Error Contract:
// - Find returns store.ErrNotFound when no record exists
// - Other methods return nil on success or wrapped errors on failure
type Store interface {
	Upsert(ctx context.Context, record *models.ConsentRecord) error
	Find(ctx context.Context, conversationID id.ConversationID, userID id.UserID) (*models.ConsentRecord, error)
	ListByConversation(ctx context.Context, conversationID id.ConversationID) ([]*models.ConsentRecord, error)
}

// PolicyCoordinator is the slice of the policy service the lifecycle needs.
// Find returns (nil, nil) when the conversation has no stored policy, which
// the evaluator treats as AI disabled.
type PolicyCoordinator interface {
	Find(ctx context.Context, conversationID id.ConversationID) (*policymodels.Policy, error)
	Get(ctx context.Context, conversationID id.ConversationID) (*policymodels.Policy, error)
	Recompute(ctx context.Context, conversationID id.ConversationID, feature models.Feature) (bool, error)
	Deauthorize(ctx context.Context, conversationID id.ConversationID) error
}

// Directory supplies authoritative conversation membership.
type Directory interface {
	Count(ctx context.Context, conversationID id.ConversationID) (int, error)
	IsMember(ctx context.Context, conversationID id.ConversationID, userID id.UserID) (bool, error)
	List(ctx context.Context, conversationID id.ConversationID) ([]id.UserID, error)
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source, for tests exercising expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service enforces the consent state machine and keeps the policy cache in
// step with consent changes.
type Service struct {
	store    Store
	policies PolicyCoordinator
	members  Directory
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService constructs a consent lifecycle service.
func NewService(store Store, policies PolicyCoordinator, members Directory, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:    store,
		policies: policies,
		members:  members,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Grant transitions the caller's consent record to granted with the given
// feature set. Granting is idempotent: repeating a grant with the same
// features leaves the record unchanged, and grantedAt only moves when the
// status actually transitions from a non-granted state.
func (s *Service) Grant(ctx context.Context, conversationID id.ConversationID, userID id.UserID, deviceID id.DeviceID, features models.FeatureSet) (*models.ConsentRecord, error) {
	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveGrantLatency(s.now().Sub(start).Seconds())
		}
	}()

	if err := s.validateScope(conversationID, userID); err != nil {
		return nil, err
	}
	if len(features) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "features must not be empty")
	}
	for _, feature := range features {
		if !feature.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvalidFeature, fmt.Sprintf("invalid feature: %s", feature))
		}
	}
	if err := s.requireMembership(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	existing, err := s.store.Find(ctx, conversationID, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to read consent record")
	}

	now := s.now()
	record := existing
	if record == nil {
		// Start pending so the first grant is a real status transition and
		// stamps grantedAt and the policy expiry below.
		record, err = models.NewRecord(conversationID, userID, models.StatusPending)
		if err != nil {
			return nil, err
		}
	}

	transitioned := record.Status != models.StatusGranted
	if !transitioned && record.AllowedFeatures.Equal(features) && record.GrantingDeviceID == deviceID {
		// Repeat of an identical grant: nothing to write, nothing to recompute.
		return record, nil
	}

	record.Status = models.StatusGranted
	record.AllowedFeatures = features
	record.DeniedReason = nil
	record.GrantingDeviceID = deviceID
	if transitioned {
		record.GrantedAt = &now
		policy, err := s.policies.Get(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		record.ExpiresAt = policy.ExpiryFor(now)
	}
	record.UpdatedAt = now

	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to save consent record")
	}

	s.audit(ctx, models.AuditActionConsentGranted, models.AuditDecisionGranted, conversationID, userID,
		"features", features.Strings(),
		"device_id", deviceID.String(),
	)
	for _, feature := range features {
		if s.metrics != nil {
			s.metrics.IncrementConsentsGranted(string(feature))
		}
		// Recompute failures are logged, not returned: the consent write is
		// durable, and a stale aiAllowed=false self-heals on the next grant
		// or authoritative evaluate. The reverse direction never lags because
		// revoke deauthorizes synchronously.
		if _, err := s.policies.Recompute(ctx, conversationID, feature); err != nil {
			s.logError(ctx, "policy recompute after grant failed",
				"conversation_id", conversationID.String(),
				"feature", string(feature),
				"error", err,
			)
		}
	}
	return record, nil
}

// Deny records that a pending participant declined. Denial is only reachable
// from pending; a granted record must be revoked instead.
func (s *Service) Deny(ctx context.Context, conversationID id.ConversationID, userID id.UserID, deviceID id.DeviceID, reason *string) (*models.ConsentRecord, error) {
	if err := s.validateScope(conversationID, userID); err != nil {
		return nil, err
	}
	if err := s.requireMembership(ctx, conversationID, userID); err != nil {
		return nil, err
	}

	record, err := s.store.Find(ctx, conversationID, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to read consent record")
		}
		record, err = models.NewRecord(conversationID, userID, models.StatusPending)
		if err != nil {
			return nil, err
		}
	}
	if !record.CanDeny() {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("cannot deny consent in status %s", record.Status))
	}

	record.Status = models.StatusDenied
	record.DeniedReason = reason
	record.GrantingDeviceID = deviceID
	record.UpdatedAt = s.now()

	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to save consent record")
	}

	s.audit(ctx, models.AuditActionConsentDenied, models.AuditDecisionDenied, conversationID, userID)
	if s.metrics != nil {
		s.metrics.IncrementConsentsDenied()
	}
	return record, nil
}

// Revoke withdraws an existing grant. Under a unanimous rule the cached
// aiAllowed flag is forced to false synchronously, before any recompute:
// a single revoke invalidates the whole conversation and must-deny cannot
// wait. Allowed features are retained on the record for audit; the record is
// logically non-granting from this point.
func (s *Service) Revoke(ctx context.Context, conversationID id.ConversationID, userID id.UserID, reason *string) (*models.ConsentRecord, error) {
	if err := s.validateScope(conversationID, userID); err != nil {
		return nil, err
	}

	record, err := s.store.Find(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no consent record to revoke")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to read consent record")
	}
	if !record.CanRevoke() {
		return nil, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("cannot revoke consent in status %s", record.Status))
	}

	record.Status = models.StatusRevoked
	record.DeniedReason = reason
	record.UpdatedAt = s.now()

	if err := s.store.Upsert(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to save consent record")
	}

	s.audit(ctx, models.AuditActionConsentRevoked, models.AuditDecisionRevoked, conversationID, userID)
	if s.metrics != nil {
		s.metrics.IncrementConsentsRevoked()
	}

	policy, err := s.policies.Find(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		// AI was never enabled here; the revoke is just record-keeping.
		return record, nil
	}

	if policy.Rule == policymodels.RuleUnanimous && policy.AIAllowed {
		if err := s.policies.Deauthorize(ctx, conversationID); err != nil {
			// Must-deny is the security-critical direction: a revoke that
			// cannot flip the cache must fail loudly so the caller retries.
			return nil, err
		}
		s.audit(ctx, models.AuditActionAIDeauthorized, models.AuditDecisionRevoked, conversationID, userID)
		if s.metrics != nil {
			s.metrics.IncrementDeauthorizations()
		}
	}

	// Settle the cache for the remaining participants (majority mode may
	// still hold, unanimity never will until a re-grant).
	s.recomputeEnabled(ctx, conversationID, policy)
	return record, nil
}

// Status reports all participants' consent state for display. Participants
// with no stored record appear as pending. Least-disclosure applies: each
// participant's private denial reason is only included for the caller's own
// record; everyone else sees statuses and aggregate counts.
func (s *Service) Status(ctx context.Context, conversationID id.ConversationID, callerID id.UserID) (*ConversationStatus, error) {
	if err := s.validateScope(conversationID, callerID); err != nil {
		return nil, err
	}
	if err := s.requireMembership(ctx, conversationID, callerID); err != nil {
		return nil, err
	}

	policy, err := s.policies.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to list consent records")
	}
	participants, err := s.members.List(ctx, conversationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to list participants")
	}

	now := s.now()
	byUser := make(map[id.UserID]*models.ConsentRecord, len(records))
	for _, record := range records {
		byUser[record.UserID] = record
	}

	status := &ConversationStatus{
		Policy:           policy,
		ParticipantCount: len(participants),
		AsOf:             now,
	}
	for _, userID := range participants {
		record, ok := byUser[userID]
		if !ok {
			record = models.PendingRecord(conversationID, userID)
		}
		if userID != callerID {
			record.DeniedReason = nil
		}
		status.Records = append(status.Records, record)
	}
	for _, feature := range policy.EnabledFeatures {
		granting := evaluator.Tally(status.Records, feature, now)
		status.Features = append(status.Features, FeatureStanding{
			Feature:       feature,
			GrantingCount: granting,
			Satisfied:     policy.Rule.Satisfied(granting, len(participants)),
		})
	}
	return status, nil
}

// Evaluate is the authoritative check callers run before decrypting content
// for an AI feature. It recomputes from policy, live consent records, and the
// current participant count, ignoring the cached aiAllowed flag. Storage
// failures surface as errors so callers fail closed; insufficient consent is
// a normal deny, never an error.
func (s *Service) Evaluate(ctx context.Context, conversationID id.ConversationID, feature models.Feature) (evaluator.Decision, error) {
	if conversationID.IsNil() {
		return evaluator.Decision{}, dErrors.New(dErrors.CodeInvalidInput, "conversation ID required")
	}
	if !feature.IsValid() {
		return evaluator.Decision{}, dErrors.New(dErrors.CodeInvalidFeature, fmt.Sprintf("invalid feature: %s", feature))
	}

	policy, err := s.policies.Find(ctx, conversationID)
	if err != nil {
		return evaluator.Decision{}, err
	}
	records, err := s.store.ListByConversation(ctx, conversationID)
	if err != nil {
		return evaluator.Decision{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to list consent records")
	}
	participants, err := s.members.Count(ctx, conversationID)
	if err != nil {
		return evaluator.Decision{}, dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to count participants")
	}

	decision := evaluator.Evaluate(policy, records, participants, feature, s.now())
	if decision.Allowed {
		s.logCheck(ctx, slog.LevelInfo, models.AuditActionConsentCheckPassed, conversationID, feature, decision)
		if s.metrics != nil {
			s.metrics.IncrementConsentCheckPassed(string(feature))
		}
	} else {
		s.logCheck(ctx, slog.LevelWarn, models.AuditActionConsentCheckFailed, conversationID, feature, decision)
		if s.metrics != nil {
			s.metrics.IncrementConsentCheckFailed(string(feature))
		}
	}
	return decision, nil
}

// HandleParticipantRemoved re-derives the cached flag after a membership
// change. Removing a granting participant can break majority; removing a
// non-granting one can complete unanimity.
func (s *Service) HandleParticipantRemoved(ctx context.Context, conversationID id.ConversationID) error {
	policy, err := s.policies.Find(ctx, conversationID)
	if err != nil {
		return err
	}
	if policy == nil {
		return nil
	}
	for _, feature := range policy.EnabledFeatures {
		if _, err := s.policies.Recompute(ctx, conversationID, feature); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) validateScope(conversationID id.ConversationID, userID id.UserID) error {
	if conversationID.IsNil() {
		return dErrors.New(dErrors.CodeInvalidInput, "conversation ID required")
	}
	if userID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}
	return nil
}

func (s *Service) requireMembership(ctx context.Context, conversationID id.ConversationID, userID id.UserID) error {
	member, err := s.members.IsMember(ctx, conversationID, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStorageFailure, "failed to check membership")
	}
	if !member {
		return dErrors.New(dErrors.CodeNotParticipant, "user is not a participant of this conversation")
	}
	return nil
}

func (s *Service) recomputeEnabled(ctx context.Context, conversationID id.ConversationID, policy *policymodels.Policy) {
	feature := models.FeatureMentionResponse
	if len(policy.EnabledFeatures) > 0 {
		feature = policy.EnabledFeatures[0]
	}
	if _, err := s.policies.Recompute(ctx, conversationID, feature); err != nil {
		s.logError(ctx, "policy recompute after revoke failed",
			"conversation_id", conversationID.String(),
			"error", err,
		)
	}
}

func (s *Service) audit(ctx context.Context, action, decision string, conversationID id.ConversationID, userID id.UserID, extra ...any) {
	if s.logger == nil {
		return
	}
	args := append([]any{
		"log_type", "audit",
		"action", action,
		"decision", decision,
		"reason", models.AuditReasonUserInitiated,
		"conversation_id", conversationID.String(),
		"user_id", userID.String(),
	}, extra...)
	s.logger.InfoContext(ctx, action, args...)
}

func (s *Service) logCheck(ctx context.Context, level slog.Level, msg string, conversationID id.ConversationID, feature models.Feature, decision evaluator.Decision) {
	if s.logger == nil {
		return
	}
	s.logger.Log(ctx, level, msg,
		"log_type", "audit",
		"conversation_id", conversationID.String(),
		"feature", string(feature),
		"allowed", decision.Allowed,
		"reason", string(decision.Reason),
		"granting_count", decision.GrantingCount,
		"participant_count", decision.ParticipantCount,
	)
}

func (s *Service) logError(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, msg, args...)
	}
}
