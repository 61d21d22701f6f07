package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
)

func TestCreateConversation(t *testing.T) {
	h := newHarness(t)

	id, err := CreateConversation(context.Background(), h.store, h.dir, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, ConversationID("alice", "bob"), id)

	conv := model.ConversationFromDoc(h.doc(t, model.ConversationPath(id)))
	assert.Equal(t, []string{"alice", "bob"}, conv.Participants)
	assert.Equal(t, model.ParticipantInfo{DisplayName: "Alice", Email: "alice@example.com", OrganizationName: "Acme"}, conv.ParticipantsInfo["alice"])
	assert.Equal(t, "Bob", conv.ParticipantsInfo["bob"].DisplayName)
	assert.Equal(t, int64(0), conv.UnreadCount)
	assert.Positive(t, conv.CreatedAt)
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)
}

func TestCreateConversation_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := CreateConversation(ctx, h.store, h.dir, "alice", "bob")
	require.NoError(t, err)
	second, err := CreateConversation(ctx, h.store, h.dir, "bob", "alice")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.mem.Len(model.Conversations))
}

func TestCreateConversation_UnknownParticipant(t *testing.T) {
	h := newHarness(t)

	_, err := CreateConversation(context.Background(), h.store, h.dir, "alice", "mallory")
	require.Error(t, err)
	assert.True(t, docstore.IsNotFound(err))
	assert.Empty(t, h.store.Calls("create"))
}

func TestCreateConversation_SameParticipant(t *testing.T) {
	h := newHarness(t)

	_, err := CreateConversation(context.Background(), h.store, h.dir, "alice", "alice")
	assert.ErrorIs(t, err, ErrSameParticipant)
	assert.Empty(t, h.store.Calls("create"))
}

func TestConversationID(t *testing.T) {
	assert.Equal(t, ConversationID("a", "b"), ConversationID("b", "a"))
	assert.NotEqual(t, ConversationID("a", "b"), ConversationID("a", "c"))
	// The separator keeps differently split pairs apart.
	assert.NotEqual(t, ConversationID("ab", "c"), ConversationID("a", "bc"))
}

func TestNewMessageID_Sortable(t *testing.T) {
	a := NewMessageID()
	b := NewMessageID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
