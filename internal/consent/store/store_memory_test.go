package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanctum/internal/consent/models"
	id "sanctum/pkg/domain"
)

func testRecord(convID id.ConversationID, userID id.UserID) *models.ConsentRecord {
	rec, _ := models.NewRecord(convID, userID, models.StatusGranted)
	rec.AllowedFeatures = models.NewFeatureSet(models.FeatureMentionResponse)
	return rec
}

func TestInMemoryStore_FindNotFound(t *testing.T) {
	s := New()
	_, err := s.Find(context.Background(), id.ConversationID(uuid.New()), id.UserID(uuid.New()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryStore_UpsertAndFind(t *testing.T) {
	s := New()
	convID := id.ConversationID(uuid.New())
	userID := id.UserID(uuid.New())

	require.NoError(t, s.Upsert(context.Background(), testRecord(convID, userID)))

	got, err := s.Find(context.Background(), convID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGranted, got.Status)
	assert.True(t, got.AllowedFeatures.Contains(models.FeatureMentionResponse))
}

// Upserting over an existing record keeps the original CreatedAt, matching the
// Postgres ON CONFLICT clause.
func TestInMemoryStore_UpsertPreservesCreatedAt(t *testing.T) {
	s := New()
	convID := id.ConversationID(uuid.New())
	userID := id.UserID(uuid.New())

	first := testRecord(convID, userID)
	first.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Upsert(context.Background(), first))

	second := testRecord(convID, userID)
	second.Status = models.StatusRevoked
	require.NoError(t, s.Upsert(context.Background(), second))

	got, err := s.Find(context.Background(), convID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRevoked, got.Status)
	assert.Equal(t, first.CreatedAt, got.CreatedAt)
}

// Returned records are deep copies; mutating them must not leak into the store.
func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	s := New()
	convID := id.ConversationID(uuid.New())
	userID := id.UserID(uuid.New())
	require.NoError(t, s.Upsert(context.Background(), testRecord(convID, userID)))

	got, err := s.Find(context.Background(), convID, userID)
	require.NoError(t, err)
	got.Status = models.StatusDenied
	got.AllowedFeatures = append(got.AllowedFeatures, models.FeatureModeration)

	fresh, err := s.Find(context.Background(), convID, userID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusGranted, fresh.Status)
	assert.False(t, fresh.AllowedFeatures.Contains(models.FeatureModeration))
}

func TestInMemoryStore_ListByConversation(t *testing.T) {
	s := New()
	convID := id.ConversationID(uuid.New())
	other := id.ConversationID(uuid.New())

	require.NoError(t, s.Upsert(context.Background(), testRecord(convID, id.UserID(uuid.New()))))
	require.NoError(t, s.Upsert(context.Background(), testRecord(convID, id.UserID(uuid.New()))))
	require.NoError(t, s.Upsert(context.Background(), testRecord(other, id.UserID(uuid.New()))))

	records, err := s.ListByConversation(context.Background(), convID)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	empty, err := s.ListByConversation(context.Background(), id.ConversationID(uuid.New()))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestInMemoryStore_DeleteByConversation(t *testing.T) {
	s := New()
	convID := id.ConversationID(uuid.New())
	userID := id.UserID(uuid.New())
	require.NoError(t, s.Upsert(context.Background(), testRecord(convID, userID)))

	require.NoError(t, s.DeleteByConversation(context.Background(), convID))

	_, err := s.Find(context.Background(), convID, userID)
	assert.ErrorIs(t, err, ErrNotFound)
}
