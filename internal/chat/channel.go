package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/loop"
	"github.com/roach88/tandem/internal/metrics"
	"github.com/roach88/tandem/internal/model"
)

// UnreadPolicy decides how sending a message changes the conversation's
// unread counter.
type UnreadPolicy string

const (
	// UnreadReset sets the counter to 1 on every send.
	UnreadReset UnreadPolicy = "reset"
	// UnreadIncrement adds 1 atomically on the server.
	UnreadIncrement UnreadPolicy = "increment"
)

// ParseUnreadPolicy parses "reset" or "increment". Empty means reset.
func ParseUnreadPolicy(s string) (UnreadPolicy, error) {
	switch UnreadPolicy(s) {
	case "", UnreadReset:
		return UnreadReset, nil
	case UnreadIncrement:
		return UnreadIncrement, nil
	}
	return "", fmt.Errorf("unknown unread policy %q", s)
}

// Channel follows the messages of the selected conversation and sends new
// ones as the account Sync follows.
//
// Thread-safety model:
//   - Select(), Close(), Send(): safe from any goroutine except a store listener
//   - Selected(), Messages(): only on the loop
type Channel struct {
	store   docstore.Store
	loop    *loop.Loop
	sync    *Sync
	logger  *slog.Logger
	metrics metrics.Recorder
	policy  UnreadPolicy

	onChange func()

	// Loop-owned state.
	watch    *watch
	selected string
	messages []model.Message
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// WithUnreadPolicy sets the unread counter policy.
//
// Default: UnreadReset
func WithUnreadPolicy(p UnreadPolicy) ChannelOption {
	return func(c *Channel) {
		c.policy = p
	}
}

// WithChannelLogger sets the logger.
func WithChannelLogger(l *slog.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = l
	}
}

// WithChannelMetrics sets the metrics recorder.
func WithChannelMetrics(m metrics.Recorder) ChannelOption {
	return func(c *Channel) {
		c.metrics = m
	}
}

// WithChannelOnChange registers a callback run on the loop after the
// selection or the message list changes.
func WithChannelOnChange(fn func()) ChannelOption {
	return func(c *Channel) {
		c.onChange = fn
	}
}

// NewChannel creates a Channel sending on behalf of the account s follows.
func NewChannel(store docstore.Store, l *loop.Loop, s *Sync, opts ...ChannelOption) *Channel {
	c := &Channel{
		store:   store,
		loop:    l,
		sync:    s,
		logger:  slog.Default(),
		metrics: metrics.Nop{},
		policy:  UnreadReset,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Select follows the messages of conversation id, oldest first, replacing
// any previous selection.
func (c *Channel) Select(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("select conversation: %w", ErrNoConversation)
	}
	w := newWatch()

	var prev *watch
	err := c.loop.Call(ctx, func() {
		prev = c.watch
		c.watch = w
		c.selected = id
		c.messages = nil
		c.changed()
	})
	if err != nil {
		return fmt.Errorf("select conversation: %w", err)
	}
	prev.stop()

	q := docstore.From(model.MessagesOf(id)).Order("timestamp", docstore.Asc)
	unsub, err := c.store.Subscribe(ctx, q, func(snap docstore.Snapshot) {
		c.loop.Post(func() {
			c.apply(w, id, snap)
		})
	})
	if err != nil {
		w.stop()
		return fmt.Errorf("subscribe messages of %s: %w", id, err)
	}
	w.attach(unsub)
	return nil
}

// Close disposes the message subscription and clears the selection.
func (c *Channel) Close(ctx context.Context) error {
	var w *watch
	err := c.loop.Call(ctx, func() {
		w = c.watch
		c.watch = nil
		c.selected = ""
		c.messages = nil
		c.changed()
	})
	w.stop()
	return err
}

func (c *Channel) apply(w *watch, id string, snap docstore.Snapshot) {
	if w != c.watch {
		return
	}
	c.metrics.RecordSnapshot("messages")
	if snap.Err != nil {
		c.logger.Warn("message snapshot failed", "conversation", id, "error", snap.Err)
		return
	}
	msgs := make([]model.Message, len(snap.Docs))
	for i, doc := range snap.Docs {
		msgs[i] = model.MessageFromDoc(id, doc)
	}
	c.messages = msgs
	c.changed()
}

func (c *Channel) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}

// Selected returns the selected conversation id, or "". Loop only.
func (c *Channel) Selected() string {
	return c.selected
}

// Messages returns a copy of the selected conversation's messages, oldest
// first. Loop only.
func (c *Channel) Messages() []model.Message {
	return append([]model.Message(nil), c.messages...)
}

// Send posts text to the selected conversation and updates the
// conversation summary. The two writes are not atomic: if the summary
// update fails the message stays written and the error is returned.
func (c *Channel) Send(ctx context.Context, text string) (model.Message, error) {
	text = NormalizeText(text)
	if text == "" {
		return model.Message{}, ErrEmptyMessage
	}

	var id, self, senderName string
	err := c.loop.Call(ctx, func() {
		id = c.selected
		self = c.sync.Self()
		if conv, ok := c.sync.Conversation(id); ok {
			senderName = conv.ParticipantsInfo[self].DisplayName
		}
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	if id == "" {
		return model.Message{}, ErrNoConversation
	}
	if self == "" {
		return model.Message{}, ErrNotStarted
	}

	msg := model.Message{
		ID:             NewMessageID(),
		ConversationID: id,
		Text:           text,
		SenderID:       self,
		SenderName:     senderName,
	}
	res, err := c.store.Create(ctx, docstore.Join(model.MessagesOf(id), msg.ID), docstore.Fields{
		"text":       msg.Text,
		"senderId":   msg.SenderID,
		"senderName": msg.SenderName,
		"timestamp":  docstore.ServerTimestamp,
		"read":       false,
	})
	if err != nil {
		c.metrics.RecordSendFailure()
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	msg.Timestamp = res.UpdateTime

	var unread any = int64(1)
	if c.policy == UnreadIncrement {
		unread = docstore.Increment(1)
	}
	_, err = c.store.Update(ctx, model.ConversationPath(id), docstore.Fields{
		"lastMessage": map[string]any{
			"text":      msg.Text,
			"senderId":  msg.SenderID,
			"timestamp": msg.Timestamp,
		},
		"updatedAt":   docstore.ServerTimestamp,
		"unreadCount": unread,
	})
	if err != nil {
		c.metrics.RecordSendFailure()
		return msg, fmt.Errorf("update conversation %s: %w", id, err)
	}

	c.logger.Debug("message sent", "conversation", id, "message", msg.ID)
	return msg, nil
}
