package chat

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tandem/internal/directory"
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/loop"
	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/testutil"
)

type harness struct {
	clock  *testutil.FakeClock
	mem    *docstore.Memory
	store  *testutil.FaultStore
	loop   *loop.Loop
	dir    *directory.Store
	lookup *countingDirectory

	// backfill enables organisation backfill for users created afterwards.
	backfill bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	clk := testutil.NewFakeClock(testutil.Epoch)
	mem := docstore.NewMemory(docstore.WithClock(clk))
	dir := directory.New(mem)

	require.NoError(t, dir.PutAccount(ctx, model.Account{ID: "alice", DisplayName: "Alice", Email: "alice@example.com", OrganizationName: "Acme"}))
	require.NoError(t, dir.PutAccount(ctx, model.Account{ID: "bob", DisplayName: "Bob", Email: "bob@example.com", Avatar: "bob.png", OrganizationID: "org-b", OrganizationName: "Unknown"}))
	require.NoError(t, dir.PutAccount(ctx, model.Account{ID: "carol", DisplayName: "Carol", Email: "carol@example.com"}))
	require.NoError(t, dir.PutOrganization(ctx, "org-b", "Bobcorp"))

	return &harness{
		clock:  clk,
		mem:    mem,
		store:  testutil.NewFaultStore(mem),
		loop:   testutil.StartLoop(t),
		dir:    dir,
		lookup: &countingDirectory{Directory: dir},
	}
}

// user is one signed-in account.
type user struct {
	sync       *Sync
	channel    *Channel
	reconciler *Reconciler
	opened     []string // loop-owned
}

func (h *harness) user(t *testing.T, id string, syncOpts []SyncOption, chanOpts ...ChannelOption) *user {
	t.Helper()
	u := &user{}
	opts := []SyncOption{
		WithClock(h.clock),
		WithBackfillRate(0),
		WithOnOpen(func(cid string) { u.opened = append(u.opened, cid) }),
	}
	var dir directory.Directory
	if h.backfill {
		dir = h.lookup
	}
	u.sync = NewSync(h.store, h.loop, dir, append(opts, syncOpts...)...)
	u.channel = NewChannel(h.store, h.loop, u.sync, chanOpts...)
	u.reconciler = NewReconciler(h.store, h.loop, u.sync, nil)

	require.NoError(t, u.sync.Start(context.Background(), id))
	t.Cleanup(func() {
		_ = u.channel.Close(context.Background())
		_ = u.sync.Stop(context.Background())
	})
	testutil.Settle(t, h.loop)
	return u
}

func (h *harness) conversation(t *testing.T, a, b string) string {
	t.Helper()
	id, err := CreateConversation(context.Background(), h.mem, h.dir, a, b)
	require.NoError(t, err)
	return id
}

// send posts text to conversation cid as u.
func (h *harness) send(t *testing.T, u *user, cid, text string) model.Message {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, u.channel.Select(ctx, cid))
	msg, err := u.channel.Send(ctx, text)
	require.NoError(t, err)
	testutil.Settle(t, h.loop)
	return msg
}

func (h *harness) doc(t *testing.T, path string) docstore.Document {
	t.Helper()
	doc, err := h.mem.Get(context.Background(), path)
	require.NoError(t, err)
	return doc
}

// onLoop runs fn on the loop and waits for it.
func onLoop(t *testing.T, l *loop.Loop, fn func()) {
	t.Helper()
	require.NoError(t, l.Call(context.Background(), fn))
}

func conversationIDs(convs []model.Conversation) []string {
	ids := make([]string, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	return ids
}

// countingDirectory counts organisation lookups and can fail them.
type countingDirectory struct {
	directory.Directory
	lookups atomic.Int64
	err     atomic.Pointer[error]
}

func (d *countingDirectory) OrganizationName(ctx context.Context, id string) (string, error) {
	d.lookups.Add(1)
	if errp := d.err.Load(); errp != nil {
		return "", *errp
	}
	return d.Directory.OrganizationName(ctx, id)
}

func (d *countingDirectory) fail(err error) {
	d.err.Store(&err)
}

func (d *countingDirectory) recovered() {
	d.err.Store(nil)
}
