package client

import (
	"context"
	"fmt"

	"github.com/roach88/tandem/internal/chat"
	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/session"
)

// SelectConversation opens conversation id and follows its messages.
func (c *Client) SelectConversation(ctx context.Context, id string) error {
	if _, err := c.self(); err != nil {
		return err
	}
	return c.channel.Select(ctx, id)
}

// CloseConversation closes the open conversation.
func (c *Client) CloseConversation(ctx context.Context) error {
	if _, err := c.self(); err != nil {
		return err
	}
	return c.channel.Close(ctx)
}

// SendMessage sends text to the open conversation.
func (c *Client) SendMessage(ctx context.Context, text string) (model.Message, error) {
	if _, err := c.self(); err != nil {
		return model.Message{}, err
	}
	return c.channel.Send(ctx, text)
}

// MarkConversationAsRead clears the unread state of conversation id. On a
// failed conversation update the error is a *chat.ReadStateError.
func (c *Client) MarkConversationAsRead(ctx context.Context, id string) error {
	if _, err := c.self(); err != nil {
		return err
	}
	return c.reconciler.MarkAsRead(ctx, id)
}

// CreateConversation opens the conversation with peer, creating it if
// needed, and returns its id.
func (c *Client) CreateConversation(ctx context.Context, peer string) (string, error) {
	self, err := c.self()
	if err != nil {
		return "", err
	}
	return chat.CreateConversation(ctx, c.store, c.dir, self.ID, peer)
}

// RequestNotificationPermission asks for notification permission and
// reports whether it is granted.
func (c *Client) RequestNotificationPermission(ctx context.Context) (bool, error) {
	if c.notifier == nil {
		return false, nil
	}
	ok, err := c.notifier.RequestPermission(ctx)
	if err != nil {
		return false, fmt.Errorf("request notification permission: %w", err)
	}
	return ok, nil
}

// RefreshReminders re-reads the unread reminder count, subject to the
// refresh rate limit.
func (c *Client) RefreshReminders(ctx context.Context) error {
	if _, err := c.self(); err != nil {
		return err
	}
	return c.reminders.Refresh(ctx)
}

// LatestReminders returns up to n of the account group's reminders,
// newest first.
func (c *Client) LatestReminders(ctx context.Context, n int) ([]model.Reminder, error) {
	if _, err := c.self(); err != nil {
		return nil, err
	}
	return c.reminders.Latest(ctx, n)
}

// AcknowledgeReminder marks reminder id sent.
func (c *Client) AcknowledgeReminder(ctx context.Context, id string) error {
	if _, err := c.self(); err != nil {
		return err
	}
	return c.reminders.Acknowledge(ctx, id)
}

// Sessions lists the session records of the signed-in account.
func (c *Client) Sessions(ctx context.Context) ([]model.Session, error) {
	self, err := c.self()
	if err != nil {
		return nil, err
	}
	return session.List(ctx, c.store, self.ID)
}

// Settle waits until the client has no queued work. One-shot commands use
// it to let the effects of a write arrive before reading state.
func (c *Client) Settle(ctx context.Context) error {
	return c.loop.Settle(ctx)
}
