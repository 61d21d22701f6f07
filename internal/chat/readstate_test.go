package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/testutil"
)

func TestMarkAsRead(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	alice := h.user(t, "alice", nil)
	bob := h.user(t, "bob", nil, WithUnreadPolicy(UnreadIncrement))

	m1 := h.send(t, bob, ab, "one")
	m2 := h.send(t, bob, ab, "two")
	mine := h.send(t, alice, ab, "three")
	h.send(t, bob, ab, "four")

	require.NoError(t, alice.reconciler.MarkAsRead(context.Background(), ab))
	testutil.Settle(t, h.loop)

	assert.Equal(t, int64(0), h.doc(t, model.ConversationPath(ab)).Data.Int("unreadCount"))
	for _, id := range []string{m1.ID, m2.ID} {
		assert.True(t, h.doc(t, docstore.Join(model.MessagesOf(ab), id)).Data.Bool("read"), id)
	}
	// Own messages stay unread for the peer.
	assert.False(t, h.doc(t, docstore.Join(model.MessagesOf(ab), mine.ID)).Data.Bool("read"))

	onLoop(t, h.loop, func() {
		assert.Equal(t, 0, alice.sync.UnreadConversationsCount())
		assert.False(t, alice.sync.HasNewMessages())
	})
}

func TestMarkAsRead_RollsBackOnFailure(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		recoverable bool
	}{
		{"transient", docstore.ErrUnavailable, true},
		{"permission denied", docstore.ErrPermissionDenied, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ab := h.conversation(t, "alice", "bob")
			alice := h.user(t, "alice", nil)
			bob := h.user(t, "bob", nil)
			h.send(t, bob, ab, "hi")

			h.store.Fail("update", model.ConversationPath(ab), tt.err)
			err := alice.reconciler.MarkAsRead(context.Background(), ab)

			var rse *ReadStateError
			require.True(t, errors.As(err, &rse))
			assert.Equal(t, ab, rse.ConversationID)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.recoverable, rse.Recoverable())
			assert.True(t, IsReadStateError(err))

			onLoop(t, h.loop, func() {
				conv, _ := alice.sync.Conversation(ab)
				assert.Equal(t, int64(1), conv.UnreadCount)
				assert.Equal(t, 1, alice.sync.UnreadConversationsCount())
			})
			// Messages are not touched when the conversation update fails.
			assert.Empty(t, h.store.Calls("query"))
		})
	}
}

func TestMarkAsRead_RollbackYieldsToNewerSnapshot(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	alice := h.user(t, "alice", nil)
	bob := h.user(t, "bob", nil)
	h.send(t, bob, ab, "hi")

	var (
		prev int64
		gen  uint64
	)
	onLoop(t, h.loop, func() {
		prev, gen, _ = alice.sync.setUnread(ab, 0)
	})
	h.send(t, bob, ab, "a newer snapshot")

	onLoop(t, h.loop, func() {
		assert.False(t, alice.sync.restoreUnread(ab, prev, gen))
	})
}

func TestMarkAsRead_MessageFailuresJoined(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	alice := h.user(t, "alice", nil)
	bob := h.user(t, "bob", nil)

	m1 := h.send(t, bob, ab, "one")
	m2 := h.send(t, bob, ab, "two")
	failing := docstore.Join(model.MessagesOf(ab), m1.ID)
	h.store.Fail("update", failing, docstore.ErrUnavailable)

	err := alice.reconciler.MarkAsRead(context.Background(), ab)
	require.Error(t, err)
	assert.False(t, IsReadStateError(err))
	assert.ErrorIs(t, err, docstore.ErrUnavailable)

	assert.Equal(t, int64(0), h.doc(t, model.ConversationPath(ab)).Data.Int("unreadCount"))
	assert.False(t, h.doc(t, failing).Data.Bool("read"))
	assert.True(t, h.doc(t, docstore.Join(model.MessagesOf(ab), m2.ID)).Data.Bool("read"))
}

func TestMarkAsRead_NotStarted(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	r := NewReconciler(h.store, h.loop, NewSync(h.store, h.loop, nil), nil)

	assert.ErrorIs(t, r.MarkAsRead(context.Background(), ab), ErrNotStarted)
	assert.ErrorIs(t, r.MarkAsRead(context.Background(), ""), ErrNoConversation)
	assert.Empty(t, h.store.Calls("update"))
}
