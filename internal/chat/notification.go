package chat

import (
	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/notify"
)

// previewLength bounds the notification body in runes.
const previewLength = 100

// notificationKey identifies one piece of activity: a conversation at a
// given lastMessage timestamp.
type notificationKey struct {
	conversationID string
	timestamp      int64
}

// notifyFresh shows a notification for every unread conversation whose
// last message is within the freshness window, at most once per
// activity. Runs on the loop.
func (s *Sync) notifyFresh() {
	if s.notifier == nil || s.notifier.Permission() != notify.Granted {
		return
	}
	now := s.clock.Now().UnixMilli()
	for _, c := range s.convs {
		ts := c.LastMessage.Timestamp
		if !c.UnreadFor(s.self) || ts == 0 {
			continue
		}
		if now-ts > s.freshness.Milliseconds() {
			continue
		}
		key := notificationKey{conversationID: c.ID, timestamp: ts}
		if s.notified[key] {
			continue
		}
		s.notified[key] = true
		s.notifier.Show(s.notification(c))
		s.metrics.RecordNotificationShown()
	}
}

func (s *Sync) notification(c model.Conversation) notify.Notification {
	title := "New message"
	sender := c.ParticipantsInfo[c.LastMessage.SenderID]
	if sender.DisplayName != "" {
		title = sender.DisplayName
	}
	id := c.ID
	return notify.Notification{
		Title: title,
		Body:  Preview(c.LastMessage.Text, previewLength),
		Icon:  sender.Avatar,
		Tag:   id,
		OnClick: func() {
			s.loop.Post(func() {
				if s.onOpen != nil {
					s.onOpen(id)
				}
			})
		},
	}
}
