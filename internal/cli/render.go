package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/roach88/tandem/internal/chat"
	"github.com/roach88/tandem/internal/client"
	"github.com/roach88/tandem/internal/model"
)

// listPreviewLength bounds message previews in listings.
const listPreviewLength = 60

// renderConversations lists conversations as seen by self, newest first.
// Unread conversations are starred.
func renderConversations(w io.Writer, self string, convs []model.Conversation) error {
	if len(convs) == 0 {
		_, err := fmt.Fprintln(w, "No conversations.")
		return err
	}
	for _, c := range convs {
		mark := " "
		if c.UnreadFor(self) {
			mark = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %s  %s\n", mark, c.ID, participantLabel(c, c.Peer(self))); err != nil {
			return err
		}
		if c.LastMessage.Text == "" {
			continue
		}
		sender := "you"
		if c.LastMessage.SenderID != self {
			sender = displayName(c, c.LastMessage.SenderID)
		}
		line := fmt.Sprintf("    %s: %s", sender, chat.Preview(c.LastMessage.Text, listPreviewLength))
		if c.UnreadFor(self) {
			line += fmt.Sprintf(" [%d unread]", c.UnreadCount)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func displayName(c model.Conversation, id string) string {
	if name := c.ParticipantsInfo[id].DisplayName; name != "" {
		return name
	}
	return id
}

func participantLabel(c model.Conversation, id string) string {
	label := displayName(c, id)
	if org := c.ParticipantsInfo[id].OrganizationName; org != "" {
		label += " (" + org + ")"
	}
	return label
}

func renderMessage(w io.Writer, m model.Message) error {
	_, err := fmt.Fprintf(w, "Sent %s to %s at %s\n", m.ID, m.ConversationID, formatMillis(m.Timestamp))
	return err
}

func renderSessions(w io.Writer, deviceID string, sessions []model.Session) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "No sessions.")
		return err
	}
	for _, s := range sessions {
		mark := " "
		if s.DeviceID == deviceID {
			mark = ">"
		}
		_, err := fmt.Fprintf(w, "%s %s  %s  last active %s\n", mark, s.DeviceID, s.Device.Platform, formatMillis(s.LastActive))
		if err != nil {
			return err
		}
	}
	return nil
}

func renderReminders(w io.Writer, rs []model.Reminder) error {
	if len(rs) == 0 {
		_, err := fmt.Fprintln(w, "No reminders.")
		return err
	}
	for _, r := range rs {
		state := "pending"
		if r.Sent {
			state = "sent"
		}
		line := fmt.Sprintf("%s  %s  %s  %s", r.ID, formatMillis(r.EffectiveTime()), state, r.Type)
		if r.Note != "" {
			line += "  " + r.Note
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// stateSummary is the one-line form watch prints on each change.
func stateSummary(st client.State) string {
	if !st.SignedIn {
		return "signed out"
	}
	line := fmt.Sprintf("%s: %d conversations, %d unread, %d reminders",
		st.Account.ID, len(st.Conversations), st.UnreadConversationsCount, st.UnreadReminders)
	if st.SelectedID != "" {
		line += fmt.Sprintf(", open %s (%d messages)", st.SelectedID, len(st.Messages))
	}
	return line
}

// formatMillis renders server time in UTC. Zero renders as "-".
func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
