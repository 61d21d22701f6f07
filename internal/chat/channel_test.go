package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/testutil"
)

func TestChannel_SendWritesMessageAndSummary(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	bob := h.user(t, "bob", nil)

	msg := h.send(t, bob, ab, "  hello alice  ")
	assert.Equal(t, "hello alice", msg.Text)
	assert.Equal(t, "Bob", msg.SenderName)
	assert.Positive(t, msg.Timestamp)

	stored := h.doc(t, docstore.Join(model.MessagesOf(ab), msg.ID))
	assert.Equal(t, "hello alice", stored.Data.String("text"))
	assert.Equal(t, "bob", stored.Data.String("senderId"))
	assert.Equal(t, "Bob", stored.Data.String("senderName"))
	assert.Equal(t, msg.Timestamp, stored.Data.Int("timestamp"))
	assert.False(t, stored.Data.Bool("read"))

	conv := model.ConversationFromDoc(h.doc(t, model.ConversationPath(ab)))
	assert.Equal(t, model.LastMessage{Text: "hello alice", SenderID: "bob", Timestamp: msg.Timestamp}, conv.LastMessage)
	assert.Equal(t, int64(1), conv.UnreadCount)
	assert.Greater(t, conv.UpdatedAt, msg.Timestamp)

	onLoop(t, h.loop, func() {
		assert.Equal(t, ab, bob.channel.Selected())
		assert.Equal(t, []model.Message{msg}, bob.channel.Messages())
	})
}

func TestChannel_SendNormalizesText(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	bob := h.user(t, "bob", nil)

	msg := h.send(t, bob, ab, "cafe\u0301")
	assert.Equal(t, "caf\u00e9", msg.Text)
}

func TestChannel_SendRejectsEmptyText(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	bob := h.user(t, "bob", nil)
	require.NoError(t, bob.channel.Select(context.Background(), ab))

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := bob.channel.Send(context.Background(), text)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Empty(t, h.store.Calls("create"))
	assert.Empty(t, h.store.Calls("update"))
}

func TestChannel_SendWithoutSelection(t *testing.T) {
	h := newHarness(t)
	h.conversation(t, "alice", "bob")
	bob := h.user(t, "bob", nil)

	_, err := bob.channel.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoConversation)
	assert.Empty(t, h.store.Calls("create"))
}

func TestChannel_SendBeforeSyncStarted(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	c := NewChannel(h.store, h.loop, NewSync(h.store, h.loop, nil))
	require.NoError(t, c.Select(context.Background(), ab))

	_, err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestChannel_UnreadPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy UnreadPolicy
		want   int64
	}{
		{"reset", UnreadReset, 1},
		{"increment", UnreadIncrement, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ab := h.conversation(t, "alice", "bob")
			bob := h.user(t, "bob", nil, WithUnreadPolicy(tt.policy))

			for _, text := range []string{"one", "two", "three"} {
				h.send(t, bob, ab, text)
			}
			assert.Equal(t, tt.want, h.doc(t, model.ConversationPath(ab)).Data.Int("unreadCount"))
		})
	}
}

func TestParseUnreadPolicy(t *testing.T) {
	p, err := ParseUnreadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, UnreadReset, p)

	p, err = ParseUnreadPolicy("increment")
	require.NoError(t, err)
	assert.Equal(t, UnreadIncrement, p)

	_, err = ParseUnreadPolicy("sometimes")
	assert.Error(t, err)
}

func TestChannel_SummaryFailureKeepsMessage(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	bob := h.user(t, "bob", nil)
	require.NoError(t, bob.channel.Select(context.Background(), ab))
	h.store.Fail("update", model.ConversationPath(ab), docstore.ErrUnavailable)

	msg, err := bob.channel.Send(context.Background(), "half sent")
	require.Error(t, err)
	assert.True(t, docstore.IsTransient(err))

	assert.Equal(t, "half sent", h.doc(t, docstore.Join(model.MessagesOf(ab), msg.ID)).Data.String("text"))
	assert.Equal(t, int64(0), h.doc(t, model.ConversationPath(ab)).Data.Int("unreadCount"))
}

func TestChannel_MessageWriteFailure(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	bob := h.user(t, "bob", nil)
	require.NoError(t, bob.channel.Select(context.Background(), ab))
	h.store.Fail("create", "", docstore.ErrPermissionDenied)

	_, err := bob.channel.Send(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, docstore.IsPermissionDenied(err))
	assert.Empty(t, h.store.Calls("update"))
}

func TestChannel_SelectReplacesSubscription(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	ac := h.conversation(t, "alice", "carol")
	alice := h.user(t, "alice", nil)
	bob := h.user(t, "bob", nil)

	require.NoError(t, alice.channel.Select(context.Background(), ab))
	require.NoError(t, alice.channel.Select(context.Background(), ac))
	h.send(t, bob, ab, "you moved on")

	onLoop(t, h.loop, func() {
		assert.Equal(t, ac, alice.channel.Selected())
		assert.Empty(t, alice.channel.Messages())
	})
}

func TestChannel_MessagesOldestFirst(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	alice := h.user(t, "alice", nil)
	bob := h.user(t, "bob", nil)

	h.send(t, bob, ab, "first")
	h.send(t, alice, ab, "second")
	h.send(t, bob, ab, "third")

	onLoop(t, h.loop, func() {
		var texts []string
		for _, m := range alice.channel.Messages() {
			texts = append(texts, m.Text)
		}
		assert.Equal(t, []string{"first", "second", "third"}, texts)
	})
}

func TestChannel_CloseClearsSelection(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	bob := h.user(t, "bob", nil)
	h.send(t, bob, ab, "bye")

	require.NoError(t, bob.channel.Close(context.Background()))
	h.send(t, h.user(t, "alice", nil), ab, "wait")

	onLoop(t, h.loop, func() {
		assert.Empty(t, bob.channel.Selected())
		assert.Empty(t, bob.channel.Messages())
	})

	_, err := bob.channel.Send(context.Background(), "again")
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestChannel_SelectRejectsEmptyID(t *testing.T) {
	h := newHarness(t)
	bob := h.user(t, "bob", nil)
	assert.ErrorIs(t, bob.channel.Select(context.Background(), ""), ErrNoConversation)
	testutil.Settle(t, h.loop)
}
