package model

import (
	"sort"

	"github.com/roach88/tandem/internal/docstore"
)

// ParticipantInfo is the denormalised per-participant cache on a
// conversation document.
type ParticipantInfo struct {
	DisplayName      string `json:"displayName"`
	Email            string `json:"email"`
	Avatar           string `json:"avatar,omitempty"`
	OrganizationName string `json:"organizationName"`
}

// Fields encodes the entry for participantsInfo.{id}.
func (p ParticipantInfo) Fields() map[string]any {
	return map[string]any{
		"displayName":      p.DisplayName,
		"email":            p.Email,
		"avatar":           p.Avatar,
		"organizationName": p.OrganizationName,
	}
}

// LastMessage summarises the newest message of a conversation.
type LastMessage struct {
	Text      string `json:"text"`
	SenderID  string `json:"senderId"`
	Timestamp int64  `json:"timestamp"`
}

// Conversation is a two-party conversation summary.
type Conversation struct {
	ID               string                     `json:"id"`
	Participants     []string                   `json:"participants"`
	ParticipantsInfo map[string]ParticipantInfo `json:"participantsInfo"`
	LastMessage      LastMessage                `json:"lastMessage"`
	UnreadCount      int64                      `json:"unreadCount"`
	CreatedAt        int64                      `json:"createdAt"`
	UpdatedAt        int64                      `json:"updatedAt"`
}

// ConversationPath is the document path of a conversation.
func ConversationPath(id string) string {
	return docstore.Join(Conversations, id)
}

// ConversationFromDoc decodes a conversations/{id} document.
func ConversationFromDoc(doc docstore.Document) Conversation {
	c := Conversation{
		ID:               doc.ID,
		Participants:     doc.Data.Strings("participants"),
		ParticipantsInfo: make(map[string]ParticipantInfo),
		LastMessage: LastMessage{
			Text:      doc.Data.String("lastMessage.text"),
			SenderID:  doc.Data.String("lastMessage.senderId"),
			Timestamp: doc.Data.Int("lastMessage.timestamp"),
		},
		UnreadCount: doc.Data.Int("unreadCount"),
		CreatedAt:   doc.Data.Int("createdAt"),
		UpdatedAt:   doc.Data.Int("updatedAt"),
	}
	for id, v := range doc.Data.Map("participantsInfo") {
		m, _ := v.(map[string]any)
		info := docstore.Fields(m)
		c.ParticipantsInfo[id] = ParticipantInfo{
			DisplayName:      info.String("displayName"),
			Email:            info.String("email"),
			Avatar:           info.String("avatar"),
			OrganizationName: info.String("organizationName"),
		}
	}
	return c
}

// UnreadFor reports whether the conversation has outstanding unread
// activity for viewer: someone else spoke last and the counter is positive.
func (c Conversation) UnreadFor(viewer string) bool {
	return c.LastMessage.SenderID != viewer && c.UnreadCount > 0
}

// Peer returns the participant that is not self, or "" if there is none.
func (c Conversation) Peer(self string) string {
	for _, p := range c.Participants {
		if p != self {
			return p
		}
	}
	return ""
}

// ParticipantIDs returns the keys of ParticipantsInfo in sorted order.
func (c Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.ParticipantsInfo))
	for id := range c.ParticipantsInfo {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a copy that shares no mutable state with c.
func (c Conversation) Clone() Conversation {
	c.Participants = append([]string(nil), c.Participants...)
	info := make(map[string]ParticipantInfo, len(c.ParticipantsInfo))
	for k, v := range c.ParticipantsInfo {
		info[k] = v
	}
	c.ParticipantsInfo = info
	return c
}

// UnreadConversations counts conversations with unread activity for
// viewer. Each conversation counts once regardless of its unreadCount.
func UnreadConversations(convs []Conversation, viewer string) int {
	n := 0
	for _, c := range convs {
		if c.UnreadFor(viewer) {
			n++
		}
	}
	return n
}

// Message is one message in a conversation.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	SenderID       string `json:"senderId"`
	SenderName     string `json:"senderName"`
	Timestamp      int64  `json:"timestamp"`
	Read           bool   `json:"read"`
}

// MessageFromDoc decodes a conversations/{cid}/messages/{id} document.
func MessageFromDoc(conversationID string, doc docstore.Document) Message {
	return Message{
		ID:             doc.ID,
		ConversationID: conversationID,
		Text:           doc.Data.String("text"),
		SenderID:       doc.Data.String("senderId"),
		SenderName:     doc.Data.String("senderName"),
		Timestamp:      doc.Data.Int("timestamp"),
		Read:           doc.Data.Bool("read"),
	}
}
