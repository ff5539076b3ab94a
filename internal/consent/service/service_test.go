package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,PolicyCoordinator,Directory

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"sanctum/internal/consent/models"
	"sanctum/internal/consent/service/mocks"
	"sanctum/internal/consent/store"
	"sanctum/internal/evaluator"
	policymodels "sanctum/internal/policy/models"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

type ServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *mocks.MockStore
	policies *mocks.MockPolicyCoordinator
	members  *mocks.MockDirectory
	service  *Service

	convID   id.ConversationID
	userID   id.UserID
	deviceID id.DeviceID
	now      time.Time
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.policies = mocks.NewMockPolicyCoordinator(s.ctrl)
	s.members = mocks.NewMockDirectory(s.ctrl)
	s.now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	s.service = NewService(
		s.store,
		s.policies,
		s.members,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return s.now }),
	)
	s.convID = id.ConversationID(uuid.New())
	s.userID = id.UserID(uuid.New())
	s.deviceID = id.DeviceID("device-1")
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) grantedRecord(features ...models.Feature) *models.ConsentRecord {
	rec, err := models.NewRecord(s.convID, s.userID, models.StatusGranted)
	s.Require().NoError(err)
	rec.AllowedFeatures = models.NewFeatureSet(features...)
	rec.GrantingDeviceID = s.deviceID
	grantedAt := s.now.Add(-time.Hour)
	rec.GrantedAt = &grantedAt
	return rec
}

// =============================================================================
// Grant
// =============================================================================

func (s *ServiceSuite) TestGrant_ValidationErrors() {
	mention := models.NewFeatureSet(models.FeatureMentionResponse)

	s.T().Run("nil conversation", func(t *testing.T) {
		_, err := s.service.Grant(context.Background(), id.ConversationID{}, s.userID, s.deviceID, mention)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.T().Run("missing user context", func(t *testing.T) {
		_, err := s.service.Grant(context.Background(), s.convID, id.UserID{}, s.deviceID, mention)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.T().Run("empty features", func(t *testing.T) {
		_, err := s.service.Grant(context.Background(), s.convID, s.userID, s.deviceID, nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.T().Run("unknown feature", func(t *testing.T) {
		_, err := s.service.Grant(context.Background(), s.convID, s.userID, s.deviceID, models.FeatureSet{"mind_reading"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidFeature))
	})
}

func (s *ServiceSuite) TestGrant_RejectsNonParticipant() {
	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(false, nil)

	_, err := s.service.Grant(context.Background(), s.convID, s.userID, s.deviceID,
		models.NewFeatureSet(models.FeatureMentionResponse))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotParticipant))
}

func (s *ServiceSuite) TestGrant_NewRecordSetsExpiryFromPolicy() {
	features := models.NewFeatureSet(models.FeatureMentionResponse)
	days := 30
	policy := policymodels.Default(s.convID)
	policy.ConsentExpiryDays = &days

	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(true, nil)
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(nil, store.ErrNotFound)
	s.policies.EXPECT().Get(gomock.Any(), s.convID).Return(policy, nil)
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	s.policies.EXPECT().Recompute(gomock.Any(), s.convID, models.FeatureMentionResponse).Return(true, nil)

	record, err := s.service.Grant(context.Background(), s.convID, s.userID, s.deviceID, features)
	s.Require().NoError(err)
	s.Equal(models.StatusGranted, record.Status)
	s.Require().NotNil(record.GrantedAt)
	s.Equal(s.now, *record.GrantedAt)
	s.Require().NotNil(record.ExpiresAt)
	s.Equal(s.now.Add(30*24*time.Hour), *record.ExpiresAt)
}

// A byte-identical re-grant writes nothing and triggers no recompute.
func (s *ServiceSuite) TestGrant_IdenticalRegrantIsIdempotent() {
	existing := s.grantedRecord(models.FeatureMentionResponse)

	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(true, nil)
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(existing, nil)

	record, err := s.service.Grant(context.Background(), s.convID, s.userID, s.deviceID,
		models.NewFeatureSet(models.FeatureMentionResponse))
	s.Require().NoError(err)
	s.Equal(existing.GrantedAt, record.GrantedAt)
}

// Widening the feature set on an already-granted record must not move
// grantedAt, but must recompute every granted feature.
func (s *ServiceSuite) TestGrant_FeatureChangeKeepsGrantedAt() {
	existing := s.grantedRecord(models.FeatureMentionResponse)
	originalGrantedAt := *existing.GrantedAt

	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(true, nil)
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(existing, nil)
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	s.policies.EXPECT().Recompute(gomock.Any(), s.convID, models.FeatureMentionResponse).Return(true, nil)
	s.policies.EXPECT().Recompute(gomock.Any(), s.convID, models.FeatureTranslation).Return(false, nil)

	record, err := s.service.Grant(context.Background(), s.convID, s.userID, s.deviceID,
		models.NewFeatureSet(models.FeatureMentionResponse, models.FeatureTranslation))
	s.Require().NoError(err)
	s.Require().NotNil(record.GrantedAt)
	s.Equal(originalGrantedAt, *record.GrantedAt)
}

// A failed recompute must not fail the grant: the consent write is durable
// and a stale aiAllowed=false self-heals on the next evaluation.
func (s *ServiceSuite) TestGrant_RecomputeFailureDoesNotFailGrant() {
	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(true, nil)
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(nil, store.ErrNotFound)
	s.policies.EXPECT().Get(gomock.Any(), s.convID).Return(policymodels.Default(s.convID), nil)
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	s.policies.EXPECT().Recompute(gomock.Any(), s.convID, models.FeatureMentionResponse).Return(false, assert.AnError)

	_, err := s.service.Grant(context.Background(), s.convID, s.userID, s.deviceID,
		models.NewFeatureSet(models.FeatureMentionResponse))
	s.NoError(err)
}

func (s *ServiceSuite) TestGrant_StoreErrorPropagation() {
	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(true, nil)
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(nil, assert.AnError)

	_, err := s.service.Grant(context.Background(), s.convID, s.userID, s.deviceID,
		models.NewFeatureSet(models.FeatureMentionResponse))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorageFailure))
}

// =============================================================================
// Deny
// =============================================================================

func (s *ServiceSuite) TestDeny_RecordsReason() {
	reason := "not comfortable with AI here"

	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(true, nil)
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(nil, store.ErrNotFound)
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)

	record, err := s.service.Deny(context.Background(), s.convID, s.userID, s.deviceID, &reason)
	s.Require().NoError(err)
	s.Equal(models.StatusDenied, record.Status)
	s.Require().NotNil(record.DeniedReason)
	s.Equal(reason, *record.DeniedReason)
}

// Denial is only reachable from pending; a granted record must be revoked.
func (s *ServiceSuite) TestDeny_GrantedRecordConflicts() {
	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(true, nil)
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(s.grantedRecord(models.FeatureMentionResponse), nil)

	_, err := s.service.Deny(context.Background(), s.convID, s.userID, s.deviceID, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

// =============================================================================
// Revoke
// =============================================================================

func (s *ServiceSuite) TestRevoke_NoRecordNotFound() {
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(nil, store.ErrNotFound)

	_, err := s.service.Revoke(context.Background(), s.convID, s.userID, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestRevoke_PendingRecordConflicts() {
	pending, err := models.NewRecord(s.convID, s.userID, models.StatusPending)
	s.Require().NoError(err)
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(pending, nil)

	_, err = s.service.Revoke(context.Background(), s.convID, s.userID, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

// Under unanimity, one revoke deauthorizes the conversation synchronously,
// before any recompute has a chance to run.
func (s *ServiceSuite) TestRevoke_UnanimousImmediateDeauthorization() {
	policy := policymodels.Default(s.convID)
	policy.AIAllowed = true

	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(s.grantedRecord(models.FeatureMentionResponse), nil)
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	s.policies.EXPECT().Find(gomock.Any(), s.convID).Return(policy, nil)
	s.policies.EXPECT().Deauthorize(gomock.Any(), s.convID).Return(nil)
	s.policies.EXPECT().Recompute(gomock.Any(), s.convID, models.FeatureMentionResponse).Return(false, nil)

	record, err := s.service.Revoke(context.Background(), s.convID, s.userID, nil)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, record.Status)
	// Features stay on the record for the audit trail.
	s.True(record.AllowedFeatures.Contains(models.FeatureMentionResponse))
}

// Must-deny is the security-critical direction: a deauthorize failure
// surfaces so the caller retries.
func (s *ServiceSuite) TestRevoke_DeauthorizeFailureSurfaces() {
	policy := policymodels.Default(s.convID)
	policy.AIAllowed = true

	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(s.grantedRecord(models.FeatureMentionResponse), nil)
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	s.policies.EXPECT().Find(gomock.Any(), s.convID).Return(policy, nil)
	s.policies.EXPECT().Deauthorize(gomock.Any(), s.convID).Return(dErrors.New(dErrors.CodeStorageFailure, "cache write failed"))

	_, err := s.service.Revoke(context.Background(), s.convID, s.userID, nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorageFailure))
}

// Under majority the remaining grants may still carry the vote, so revoke
// recomputes instead of force-deauthorizing.
func (s *ServiceSuite) TestRevoke_MajorityRecomputesOnly() {
	policy := policymodels.Default(s.convID)
	policy.Rule = policymodels.RuleMajority
	policy.AIAllowed = true

	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(s.grantedRecord(models.FeatureMentionResponse), nil)
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	s.policies.EXPECT().Find(gomock.Any(), s.convID).Return(policy, nil)
	s.policies.EXPECT().Recompute(gomock.Any(), s.convID, models.FeatureMentionResponse).Return(true, nil)

	_, err := s.service.Revoke(context.Background(), s.convID, s.userID, nil)
	s.NoError(err)
}

func (s *ServiceSuite) TestRevoke_NoPolicyIsRecordKeepingOnly() {
	s.store.EXPECT().Find(gomock.Any(), s.convID, s.userID).Return(s.grantedRecord(models.FeatureMentionResponse), nil)
	s.store.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(nil)
	s.policies.EXPECT().Find(gomock.Any(), s.convID).Return(nil, nil)

	record, err := s.service.Revoke(context.Background(), s.convID, s.userID, nil)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, record.Status)
}

// =============================================================================
// Status
// =============================================================================

// Least-disclosure: denial reasons are private to their author, and silent
// participants show as pending.
func (s *ServiceSuite) TestStatus_LeastDisclosure() {
	other := id.UserID(uuid.New())
	silent := id.UserID(uuid.New())
	reason := "personal reasons"

	otherRecord, err := models.NewRecord(s.convID, other, models.StatusDenied)
	s.Require().NoError(err)
	otherRecord.DeniedReason = &reason

	callerRecord, err := models.NewRecord(s.convID, s.userID, models.StatusDenied)
	s.Require().NoError(err)
	callerRecord.DeniedReason = &reason

	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(true, nil)
	s.policies.EXPECT().Get(gomock.Any(), s.convID).Return(policymodels.Default(s.convID), nil)
	s.store.EXPECT().ListByConversation(gomock.Any(), s.convID).
		Return([]*models.ConsentRecord{otherRecord, callerRecord}, nil)
	s.members.EXPECT().List(gomock.Any(), s.convID).Return([]id.UserID{s.userID, other, silent}, nil)

	status, err := s.service.Status(context.Background(), s.convID, s.userID)
	s.Require().NoError(err)
	s.Equal(3, status.ParticipantCount)
	s.Require().Len(status.Records, 3)

	for _, rec := range status.Records {
		switch rec.UserID {
		case s.userID:
			s.Require().NotNil(rec.DeniedReason, "caller sees own reason")
			s.Equal(reason, *rec.DeniedReason)
		case other:
			s.Nil(rec.DeniedReason, "others' reasons are private")
		case silent:
			s.Equal(models.StatusPending, rec.Status, "no record shows as pending")
		}
	}
}

func (s *ServiceSuite) TestStatus_FeatureStandingCounts() {
	granting := id.UserID(uuid.New())
	rec, err := models.NewRecord(s.convID, granting, models.StatusGranted)
	s.Require().NoError(err)
	rec.AllowedFeatures = models.NewFeatureSet(models.FeatureMentionResponse)

	s.members.EXPECT().IsMember(gomock.Any(), s.convID, s.userID).Return(true, nil)
	s.policies.EXPECT().Get(gomock.Any(), s.convID).Return(policymodels.Default(s.convID), nil)
	s.store.EXPECT().ListByConversation(gomock.Any(), s.convID).Return([]*models.ConsentRecord{rec}, nil)
	s.members.EXPECT().List(gomock.Any(), s.convID).Return([]id.UserID{s.userID, granting}, nil)

	status, err := s.service.Status(context.Background(), s.convID, s.userID)
	s.Require().NoError(err)
	s.Require().Len(status.Features, 1)
	s.Equal(models.FeatureMentionResponse, status.Features[0].Feature)
	s.Equal(1, status.Features[0].GrantingCount)
	s.False(status.Features[0].Satisfied, "1 of 2 does not satisfy unanimity")
}

// =============================================================================
// Evaluate
// =============================================================================

func (s *ServiceSuite) TestEvaluate_NoPolicyDeniesAsAIDisabled() {
	s.policies.EXPECT().Find(gomock.Any(), s.convID).Return(nil, nil)
	s.store.EXPECT().ListByConversation(gomock.Any(), s.convID).Return(nil, nil)
	s.members.EXPECT().Count(gomock.Any(), s.convID).Return(3, nil)

	decision, err := s.service.Evaluate(context.Background(), s.convID, models.FeatureMentionResponse)
	s.Require().NoError(err)
	s.False(decision.Allowed)
	s.Equal(evaluator.ReasonAIDisabled, decision.Reason)
}

// Storage failures surface as errors so callers fail closed rather than
// defaulting to allow.
func (s *ServiceSuite) TestEvaluate_FailsClosedOnStorageError() {
	s.policies.EXPECT().Find(gomock.Any(), s.convID).Return(policymodels.Default(s.convID), nil)
	s.store.EXPECT().ListByConversation(gomock.Any(), s.convID).Return(nil, assert.AnError)

	_, err := s.service.Evaluate(context.Background(), s.convID, models.FeatureMentionResponse)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStorageFailure))
}

func (s *ServiceSuite) TestEvaluate_RejectsUnknownFeature() {
	_, err := s.service.Evaluate(context.Background(), s.convID, models.Feature("mind_reading"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidFeature))
}

// =============================================================================
// Participant removal
// =============================================================================

func (s *ServiceSuite) TestHandleParticipantRemoved_RecomputesEnabledFeatures() {
	policy := policymodels.Default(s.convID)
	policy.EnabledFeatures = models.NewFeatureSet(models.FeatureMentionResponse, models.FeatureSummary)

	s.policies.EXPECT().Find(gomock.Any(), s.convID).Return(policy, nil)
	s.policies.EXPECT().Recompute(gomock.Any(), s.convID, models.FeatureMentionResponse).Return(true, nil)
	s.policies.EXPECT().Recompute(gomock.Any(), s.convID, models.FeatureSummary).Return(false, nil)

	s.NoError(s.service.HandleParticipantRemoved(context.Background(), s.convID))
}

func (s *ServiceSuite) TestHandleParticipantRemoved_NoPolicyIsNoop() {
	s.policies.EXPECT().Find(gomock.Any(), s.convID).Return(nil, nil)
	s.NoError(s.service.HandleParticipantRemoved(context.Background(), s.convID))
}
