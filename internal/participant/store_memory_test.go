package participant

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "sanctum/pkg/domain"
)

func TestInMemoryDirectory(t *testing.T) {
	d := NewInMemory()
	ctx := context.Background()
	conversationID := id.ConversationID(uuid.New())
	alice := id.UserID(uuid.New())
	bob := id.UserID(uuid.New())

	count, err := d.Count(ctx, conversationID)
	require.NoError(t, err)
	assert.Zero(t, count, "unknown conversation has no members")

	d.Add(conversationID, alice)
	d.Add(conversationID, bob)
	d.Add(conversationID, bob) // idempotent

	count, err = d.Count(ctx, conversationID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	member, err := d.IsMember(ctx, conversationID, alice)
	require.NoError(t, err)
	assert.True(t, member)

	outsider, err := d.IsMember(ctx, conversationID, id.UserID(uuid.New()))
	require.NoError(t, err)
	assert.False(t, outsider)

	users, err := d.List(ctx, conversationID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []id.UserID{alice, bob}, users)

	d.Remove(conversationID, bob)
	count, err = d.Count(ctx, conversationID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
