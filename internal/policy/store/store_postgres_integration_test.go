//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	consent "sanctum/internal/consent/models"
	"sanctum/internal/policy/models"
	"sanctum/internal/policy/store"
	"sanctum/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateModuleTables(context.Background()))
}

func (s *PostgresStoreSuite) TestGetNotFound() {
	ctx := context.Background()
	conversationID, _ := s.postgres.CreateTestConversation(ctx, s.T(), 1)

	_, err := s.store.Get(ctx, conversationID)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpsertAndGet() {
	ctx := context.Background()
	conversationID, _ := s.postgres.CreateTestConversation(ctx, s.T(), 2)

	policy := models.Default(conversationID)
	policy.Rule = models.RuleMajority
	policy.EnabledFeatures = consent.NewFeatureSet(consent.FeatureMentionResponse, consent.FeatureSummary)
	days := 30
	policy.ConsentExpiryDays = &days
	s.Require().NoError(s.store.Upsert(ctx, policy))

	found, err := s.store.Get(ctx, conversationID)
	s.Require().NoError(err)
	s.Equal(conversationID, found.ConversationID)
	s.False(found.AIAllowed)
	s.Equal(models.RuleMajority, found.Rule)
	s.True(found.EnabledFeatures.Equal(policy.EnabledFeatures))
	s.Require().NotNil(found.ConsentExpiryDays)
	s.Equal(30, *found.ConsentExpiryDays)
}

func (s *PostgresStoreSuite) TestUpsertReplacesExisting() {
	ctx := context.Background()
	conversationID, _ := s.postgres.CreateTestConversation(ctx, s.T(), 2)

	policy := models.Default(conversationID)
	days := 7
	policy.ConsentExpiryDays = &days
	s.Require().NoError(s.store.Upsert(ctx, policy))

	policy.ConsentExpiryDays = nil
	policy.AIAllowed = true
	s.Require().NoError(s.store.Upsert(ctx, policy))

	found, err := s.store.Get(ctx, conversationID)
	s.Require().NoError(err)
	s.True(found.AIAllowed)
	s.Nil(found.ConsentExpiryDays, "cleared expiry must persist as NULL")
}

func (s *PostgresStoreSuite) TestSetAIAllowed() {
	ctx := context.Background()
	conversationID, _ := s.postgres.CreateTestConversation(ctx, s.T(), 2)

	policy := models.Default(conversationID)
	policy.AIAllowed = true
	s.Require().NoError(s.store.Upsert(ctx, policy))

	s.Require().NoError(s.store.SetAIAllowed(ctx, conversationID, false))

	found, err := s.store.Get(ctx, conversationID)
	s.Require().NoError(err)
	s.False(found.AIAllowed)
}

func (s *PostgresStoreSuite) TestSetAIAllowedMissingPolicy() {
	ctx := context.Background()
	conversationID, _ := s.postgres.CreateTestConversation(ctx, s.T(), 1)

	err := s.store.SetAIAllowed(ctx, conversationID, false)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDeleteByConversation() {
	ctx := context.Background()
	conversationID, _ := s.postgres.CreateTestConversation(ctx, s.T(), 1)

	s.Require().NoError(s.store.Upsert(ctx, models.Default(conversationID)))
	s.Require().NoError(s.store.DeleteByConversation(ctx, conversationID))

	_, err := s.store.Get(ctx, conversationID)
	s.ErrorIs(err, store.ErrNotFound)
}
