package client

import (
	"context"
	"fmt"

	"github.com/roach88/tandem/internal/model"
)

// State is a consistent snapshot of everything the interface renders.
type State struct {
	SignedIn                 bool                 `json:"signedIn"`
	Account                  model.Account        `json:"account"`
	DeviceID                 string               `json:"deviceId"`
	Conversations            []model.Conversation `json:"conversations"`
	UnreadConversationsCount int                  `json:"unreadConversationsCount"`
	HasNewMessages           bool                 `json:"hasNewMessages"`
	SelectedID               string               `json:"selectedId,omitempty"`
	Messages                 []model.Message      `json:"messages"`
	UnreadReminders          int                  `json:"unreadReminders"`
}

// Selected returns the selected conversation's summary, if it is in the
// list.
func (s State) Selected() (model.Conversation, bool) {
	for _, c := range s.Conversations {
		if c.ID == s.SelectedID {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// NoticeKind classifies user-visible notices.
type NoticeKind string

// NoticeSignedInElsewhere: a newer session for the account took over and
// this device was signed out.
const NoticeSignedInElsewhere NoticeKind = "signed_in_elsewhere"

// Notice is a dismissible message for the user.
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	AccountID string     `json:"accountId"`
	Message   string     `json:"message"`
}

// State returns the current state.
func (c *Client) State(ctx context.Context) (State, error) {
	var st State
	if err := c.loop.Call(ctx, func() { st = c.buildState() }); err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	return st, nil
}

// OnStateChange registers fn to receive the state after every change. fn
// runs on the loop.
func (c *Client) OnStateChange(fn func(State)) {
	c.loop.Post(func() {
		c.onState = append(c.onState, fn)
	})
}

// OnNotice registers fn to receive notices. fn runs on the loop.
func (c *Client) OnNotice(fn func(Notice)) {
	c.loop.Post(func() {
		c.onNotice = append(c.onNotice, fn)
	})
}

// buildState runs on the loop.
func (c *Client) buildState() State {
	st := State{
		DeviceID:      c.deviceID,
		Conversations: []model.Conversation{},
		Messages:      []model.Message{},
	}
	acct := c.currentAccount()
	if acct == nil {
		return st
	}
	st.SignedIn = true
	st.Account = *acct
	st.Conversations = c.sync.Conversations()
	st.UnreadConversationsCount = c.sync.UnreadConversationsCount()
	st.HasNewMessages = c.sync.HasNewMessages()
	st.SelectedID = c.channel.Selected()
	st.Messages = c.channel.Messages()
	st.UnreadReminders = c.reminders.Count()
	return st
}

// changed publishes the state to the hooks. Runs on the loop.
func (c *Client) changed() {
	if len(c.onState) == 0 {
		return
	}
	st := c.buildState()
	for _, fn := range c.onState {
		fn(st)
	}
}

// emit runs on the loop.
func (c *Client) emit(n Notice) {
	for _, fn := range c.onNotice {
		fn(n)
	}
}
