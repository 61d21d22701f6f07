package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/notify"
	"github.com/roach88/tandem/internal/testutil"
)

func TestSync_FollowsOwnConversationsNewestFirst(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	ac := h.conversation(t, "alice", "carol")
	h.conversation(t, "bob", "carol")

	alice := h.user(t, "alice", nil)
	bob := h.user(t, "bob", nil)

	var ids []string
	onLoop(t, h.loop, func() { ids = conversationIDs(alice.sync.Conversations()) })
	assert.Equal(t, []string{ac, ab}, ids)

	h.send(t, bob, ab, "hi")

	onLoop(t, h.loop, func() { ids = conversationIDs(alice.sync.Conversations()) })
	assert.Equal(t, []string{ab, ac}, ids)
}

func TestSync_UnreadAggregation(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	h.conversation(t, "alice", "carol")
	alice := h.user(t, "alice", nil)
	bob := h.user(t, "bob", nil)

	var (
		count int
		has   bool
	)
	read := func() {
		onLoop(t, h.loop, func() {
			count = alice.sync.UnreadConversationsCount()
			has = alice.sync.HasNewMessages()
		})
	}

	read()
	assert.Equal(t, 0, count)
	assert.False(t, has)

	h.send(t, bob, ab, "are you there?")
	read()
	assert.Equal(t, 1, count)
	assert.True(t, has)

	// Replying makes alice the last sender.
	h.send(t, alice, ab, "yes")
	read()
	assert.Equal(t, 0, count)
	assert.False(t, has)
}

func TestSync_UnreadCountsConversationsNotMessages(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	alice := h.user(t, "alice", nil)
	bob := h.user(t, "bob", nil, WithUnreadPolicy(UnreadIncrement))

	h.send(t, bob, ab, "one")
	h.send(t, bob, ab, "two")

	var (
		conv  model.Conversation
		count int
	)
	onLoop(t, h.loop, func() {
		conv, _ = alice.sync.Conversation(ab)
		count = alice.sync.UnreadConversationsCount()
	})
	assert.Equal(t, int64(2), conv.UnreadCount)
	assert.Equal(t, 1, count)
}

func TestSync_StopClearsStateAndIgnoresLaterSnapshots(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	alice := h.user(t, "alice", nil)
	bob := h.user(t, "bob", nil)

	require.NoError(t, alice.sync.Stop(context.Background()))
	h.send(t, bob, ab, "hello?")

	onLoop(t, h.loop, func() {
		assert.False(t, alice.sync.Active())
		assert.Empty(t, alice.sync.Conversations())
		assert.Equal(t, 0, alice.sync.UnreadConversationsCount())
		assert.Empty(t, alice.sync.Self())
	})
}

func TestSync_RestartFollowsNewAccount(t *testing.T) {
	h := newHarness(t)
	h.conversation(t, "alice", "bob")
	bc := h.conversation(t, "bob", "carol")
	u := h.user(t, "alice", nil)

	require.NoError(t, u.sync.Start(context.Background(), "carol"))
	testutil.Settle(t, h.loop)

	onLoop(t, h.loop, func() {
		assert.Equal(t, "carol", u.sync.Self())
		assert.Equal(t, []string{bc}, conversationIDs(u.sync.Conversations()))
	})
}

func TestSync_StartRejectsEmptyAccount(t *testing.T) {
	h := newHarness(t)
	s := NewSync(h.store, h.loop, nil)
	require.Error(t, s.Start(context.Background(), ""))
	assert.Empty(t, h.store.Calls("subscribe"))
}

func TestSync_StartSubscribeFailure(t *testing.T) {
	h := newHarness(t)
	h.store.Fail("subscribe", model.Conversations, docstore.ErrPermissionDenied)
	s := NewSync(h.store, h.loop, nil)

	err := s.Start(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, docstore.IsPermissionDenied(err))
}

func TestSync_SnapshotErrorKeepsLastList(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	u := h.user(t, "alice", nil)

	onLoop(t, h.loop, func() {
		u.sync.apply(u.sync.watch, docstore.Snapshot{Err: docstore.ErrUnavailable})
		assert.Equal(t, []string{ab}, conversationIDs(u.sync.Conversations()))
	})
}

func TestSync_IgnoresSnapshotsOfReplacedWatch(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	u := h.user(t, "alice", nil)

	onLoop(t, h.loop, func() {
		u.sync.apply(newWatch(), docstore.Snapshot{Docs: []docstore.Document{}})
		assert.Equal(t, []string{ab}, conversationIDs(u.sync.Conversations()))
	})
}

func TestSync_OnChange(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	changes := 0 // loop-owned
	h.user(t, "alice", []SyncOption{WithOnChange(func() { changes++ })})
	bob := h.user(t, "bob", nil)

	var before int
	onLoop(t, h.loop, func() { before = changes })
	assert.Positive(t, before)

	h.send(t, bob, ab, "ping")
	onLoop(t, h.loop, func() { assert.Greater(t, changes, before) })
}

func TestNotify_FreshUnreadShownOnce(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	n := testutil.NewNotifier(notify.Granted, true)
	h.user(t, "alice", []SyncOption{WithNotifier(n)})
	bob := h.user(t, "bob", nil)

	h.send(t, bob, ab, "lunch?")
	require.Len(t, n.Shown(), 1)
	shown := n.Shown()[0]
	assert.Equal(t, "Bob", shown.Title)
	assert.Equal(t, "lunch?", shown.Body)
	assert.Equal(t, "bob.png", shown.Icon)
	assert.Equal(t, ab, shown.Tag)

	// An unrelated snapshot does not replay it.
	h.conversation(t, "alice", "carol")
	testutil.Settle(t, h.loop)
	assert.Len(t, n.Shown(), 1)

	h.send(t, bob, ab, "now?")
	assert.Equal(t, []string{ab, ab}, n.Tags())
}

func TestNotify_StaleActivityNotShown(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	bob := h.user(t, "bob", nil)
	h.send(t, bob, ab, "old news")

	h.clock.Advance(DefaultFreshnessWindow + time.Second)

	n := testutil.NewNotifier(notify.Granted, true)
	alice := h.user(t, "alice", []SyncOption{WithNotifier(n)})

	assert.Empty(t, n.Shown())
	onLoop(t, h.loop, func() {
		assert.Equal(t, 1, alice.sync.UnreadConversationsCount())
	})
}

func TestNotify_OwnMessagesNotShown(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	n := testutil.NewNotifier(notify.Granted, true)
	alice := h.user(t, "alice", []SyncOption{WithNotifier(n)})

	h.send(t, alice, ab, "hello bob")
	assert.Empty(t, n.Shown())
}

func TestNotify_RequiresPermission(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	n := testutil.NewNotifier(notify.Denied, false)
	h.user(t, "alice", []SyncOption{WithNotifier(n)})
	bob := h.user(t, "bob", nil)

	h.send(t, bob, ab, "first")
	assert.Empty(t, n.Shown())

	n.SetPermission(notify.Granted)
	h.send(t, bob, ab, "second")
	require.Len(t, n.Shown(), 1)
	assert.Equal(t, "second", n.Shown()[0].Body)
}

func TestNotify_ClickOpensConversation(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	n := testutil.NewNotifier(notify.Granted, true)
	alice := h.user(t, "alice", []SyncOption{WithNotifier(n)})
	bob := h.user(t, "bob", nil)

	h.send(t, bob, ab, "click me")
	require.Len(t, n.Shown(), 1)

	n.Shown()[0].OnClick()
	testutil.Settle(t, h.loop)
	onLoop(t, h.loop, func() {
		assert.Equal(t, []string{ab}, alice.opened)
	})
}

// backfillIdle reports whether u has no lookup in flight and at least
// settled lookups recorded.
func backfillIdle(h *harness, u *user, settled int) func() bool {
	return func() bool {
		var ok bool
		_ = h.loop.Call(context.Background(), func() {
			ok = len(u.sync.inflight) == 0 && len(u.sync.settled) >= settled
		})
		return ok
	}
}

// lookedUp reports whether at least n lookups ran and none is in flight.
func lookedUp(h *harness, u *user, n int64) func() bool {
	return func() bool {
		return h.lookup.lookups.Load() >= n && backfillIdle(h, u, 0)()
	}
}

func TestBackfill_PatchesPlaceholderAndConverges(t *testing.T) {
	h := newHarness(t)
	h.backfill = true
	ab := h.conversation(t, "alice", "bob")
	alice := h.user(t, "alice", nil)

	require.Eventually(t, func() bool {
		doc, err := h.mem.Get(context.Background(), model.ConversationPath(ab))
		return err == nil && doc.Data.String("participantsInfo.bob.organizationName") == "Bobcorp"
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, backfillIdle(h, alice, 1), 2*time.Second, 5*time.Millisecond)

	// Alice's entry already had a real name.
	assert.Equal(t, int64(1), h.lookup.lookups.Load())
	assert.Equal(t, []string{model.ConversationPath(ab)}, h.store.Calls("update"))

	onLoop(t, h.loop, func() {
		conv, ok := alice.sync.Conversation(ab)
		assert.True(t, ok)
		assert.Equal(t, "Bobcorp", conv.ParticipantsInfo["bob"].OrganizationName)
		assert.Equal(t, "Acme", conv.ParticipantsInfo["alice"].OrganizationName)
	})

	// Further snapshots find nothing to do.
	_, err := h.mem.Update(context.Background(), model.ConversationPath(ab), docstore.Fields{"updatedAt": docstore.ServerTimestamp})
	require.NoError(t, err)
	testutil.Settle(t, h.loop)
	require.Never(t, func() bool { return h.lookup.lookups.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, h.store.Calls("update"), 1)
}

func TestBackfill_SkipsEmptyAuthoritativeName(t *testing.T) {
	h := newHarness(t)
	h.backfill = true
	ac := h.conversation(t, "alice", "carol")
	alice := h.user(t, "alice", nil)

	require.Eventually(t, backfillIdle(h, alice, 1), 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(1), h.lookup.lookups.Load())
	assert.Empty(t, h.store.Calls("update"))

	// The same cached value is not looked up again.
	_, err := h.mem.Update(context.Background(), model.ConversationPath(ac), docstore.Fields{"updatedAt": docstore.ServerTimestamp})
	require.NoError(t, err)
	testutil.Settle(t, h.loop)
	require.Never(t, func() bool { return h.lookup.lookups.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestBackfill_LookupFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.backfill = true
	h.lookup.fail(errors.New("directory unavailable"))
	ab := h.conversation(t, "alice", "bob")
	alice := h.user(t, "alice", nil)

	require.Eventually(t, lookedUp(h, alice, 1), 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, h.store.Calls("update"))
	onLoop(t, h.loop, func() {
		assert.Equal(t, []string{ab}, conversationIDs(alice.sync.Conversations()))
		assert.Empty(t, alice.sync.settled, "a failed lookup is retried later")
	})
}

func TestBackfill_RetriesAfterLookupRecovers(t *testing.T) {
	h := newHarness(t)
	ab := h.conversation(t, "alice", "bob")
	bob := h.user(t, "bob", nil)

	h.backfill = true
	h.lookup.fail(errors.New("directory unavailable"))
	alice := h.user(t, "alice", nil)
	require.Eventually(t, lookedUp(h, alice, 1), 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Unknown", h.doc(t, model.ConversationPath(ab)).Data.String("participantsInfo.bob.organizationName"))

	// The directory is back; the next snapshot retries the lookup.
	h.lookup.recovered()
	h.send(t, bob, ab, "hello")

	require.Eventually(t, func() bool {
		doc, err := h.mem.Get(context.Background(), model.ConversationPath(ab))
		return err == nil && doc.Data.String("participantsInfo.bob.organizationName") == "Bobcorp"
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, backfillIdle(h, alice, 1), 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, h.lookup.lookups.Load(), int64(2))
}

func TestBackfill_PatchFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.backfill = true
	ab := h.conversation(t, "alice", "bob")
	h.store.Fail("update", model.ConversationPath(ab), docstore.ErrUnavailable)
	alice := h.user(t, "alice", nil)

	require.Eventually(t, lookedUp(h, alice, 1), 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "Unknown", h.doc(t, model.ConversationPath(ab)).Data.String("participantsInfo.bob.organizationName"))

	// Once writes succeed again, the next snapshot patches the entry.
	h.store.Clear()
	_, err := h.mem.Update(context.Background(), model.ConversationPath(ab), docstore.Fields{"updatedAt": docstore.ServerTimestamp})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		doc, err := h.mem.Get(context.Background(), model.ConversationPath(ab))
		return err == nil && doc.Data.String("participantsInfo.bob.organizationName") == "Bobcorp"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBackfill_PatchesParticipantWithDottedID(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.dir.PutAccount(ctx, model.Account{ID: "dan.smith", DisplayName: "Dan", OrganizationID: "org-b", OrganizationName: "Unknown"}))
	h.backfill = true
	ad := h.conversation(t, "alice", "dan.smith")
	alice := h.user(t, "alice", nil)

	field := docstore.FieldPath("participantsInfo", "dan.smith", "organizationName")
	require.Eventually(t, func() bool {
		doc, err := h.mem.Get(ctx, model.ConversationPath(ad))
		return err == nil && doc.Data.String(field) == "Bobcorp"
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, backfillIdle(h, alice, 1), 2*time.Second, 5*time.Millisecond)

	info := h.doc(t, model.ConversationPath(ad)).Data.Map("participantsInfo")
	assert.NotContains(t, info, "dan")
	assert.Equal(t, "Dan", info.String(docstore.FieldPath("dan.smith", "displayName")))
	onLoop(t, h.loop, func() {
		conv, ok := alice.sync.Conversation(ad)
		assert.True(t, ok)
		assert.Equal(t, "Bobcorp", conv.ParticipantsInfo["dan.smith"].OrganizationName)
	})
}

func TestBackfill_CustomPlaceholders(t *testing.T) {
	h := newHarness(t)
	h.backfill = true
	h.conversation(t, "alice", "bob")
	alice := h.user(t, "alice", []SyncOption{WithPlaceholders(nil)})

	// "Unknown" is a real name now; only empty names are looked up.
	testutil.Settle(t, h.loop)
	require.Eventually(t, backfillIdle(h, alice, 0), 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, h.lookup.lookups.Load())
}
