package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tandem/internal/client"
	"github.com/roach88/tandem/internal/device"
	"github.com/roach88/tandem/internal/model"
)

// Golden files live in testdata/. Regenerate with:
//
//	go test ./internal/cli -update
func TestRenderConversations_Golden(t *testing.T) {
	convs := []model.Conversation{
		{
			ID:           "c-bob",
			Participants: []string{"alice", "bob"},
			ParticipantsInfo: map[string]model.ParticipantInfo{
				"alice": {DisplayName: "Alice"},
				"bob":   {DisplayName: "Bob", OrganizationName: "Bobcorp"},
			},
			LastMessage: model.LastMessage{Text: "lunch at   noon?", SenderID: "bob", Timestamp: 3},
			UnreadCount: 2,
		},
		{
			ID:           "c-carol",
			Participants: []string{"alice", "carol"},
			ParticipantsInfo: map[string]model.ParticipantInfo{
				"alice": {DisplayName: "Alice"},
			},
			LastMessage: model.LastMessage{Text: "see you", SenderID: "alice", Timestamp: 2},
			UnreadCount: 1,
		},
		{
			ID:           "c-dave",
			Participants: []string{"alice", "dave"},
			ParticipantsInfo: map[string]model.ParticipantInfo{
				"dave": {DisplayName: "Dave"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderConversations(&buf, "alice", convs))

	g := goldie.New(t)
	g.Assert(t, "conversations", buf.Bytes())
}

func TestRenderSessions_Golden(t *testing.T) {
	sessions := []model.Session{
		{AccountID: "alice", DeviceID: "dev-a", LastActive: 1700000000000, Device: device.Descriptor{Platform: "linux/amd64"}},
		{AccountID: "alice", DeviceID: "dev-b", LastActive: 1699999940000, Device: device.Descriptor{Platform: "darwin/arm64"}},
	}

	var buf bytes.Buffer
	require.NoError(t, renderSessions(&buf, "dev-a", sessions))

	g := goldie.New(t)
	g.Assert(t, "sessions", buf.Bytes())
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderConversations(&buf, "alice", nil))
	require.NoError(t, renderSessions(&buf, "dev-a", nil))
	require.NoError(t, renderReminders(&buf, nil))
	assert.Equal(t, "No conversations.\nNo sessions.\nNo reminders.\n", buf.String())
}

func TestRenderReminders(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderReminders(&buf, []model.Reminder{
		{ID: "r2", Type: "follow_up", ScheduledAt: 1700000000000, Note: "call back"},
		{ID: "r1", Type: "follow_up", CreatedAt: 1699999940000, Sent: true},
	}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "r2  2023-11-14T22:13:20Z  pending  follow_up  call back", lines[0])
	assert.Equal(t, "r1  2023-11-14T22:12:20Z  sent  follow_up", lines[1])
}

func TestStateSummary(t *testing.T) {
	assert.Equal(t, "signed out", stateSummary(client.State{}))

	st := client.State{
		SignedIn:                 true,
		Account:                  model.Account{ID: "alice"},
		Conversations:            make([]model.Conversation, 3),
		UnreadConversationsCount: 1,
		UnreadReminders:          2,
		SelectedID:               "c-bob",
		Messages:                 make([]model.Message, 4),
	}
	assert.Equal(t, "alice: 3 conversations, 1 unread, 2 reminders, open c-bob (4 messages)", stateSummary(st))
}

func TestFormatMillis(t *testing.T) {
	assert.Equal(t, "-", formatMillis(0))
	assert.Equal(t, "2023-11-14T22:13:20Z", formatMillis(1700000000000))
}
