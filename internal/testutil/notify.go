package testutil

import (
	"context"
	"sync"

	"github.com/roach88/tandem/internal/notify"
)

// Notifier is a notify.Notifier that records what it shows.
type Notifier struct {
	mu     sync.Mutex
	perm   notify.Permission
	answer bool
	shown  []notify.Notification
}

var _ notify.Notifier = (*Notifier)(nil)

// NewNotifier returns a recorder with the given permission. Permission
// requests are answered with grant.
func NewNotifier(perm notify.Permission, grant bool) *Notifier {
	return &Notifier{perm: perm, answer: grant}
}

// Permission implements notify.Notifier.
func (n *Notifier) Permission() notify.Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.perm
}

// SetPermission changes the permission.
func (n *Notifier) SetPermission(p notify.Permission) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.perm = p
}

// RequestPermission implements notify.Notifier.
func (n *Notifier) RequestPermission(ctx context.Context) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.perm == notify.Undetermined {
		if n.answer {
			n.perm = notify.Granted
		} else {
			n.perm = notify.Denied
		}
	}
	return n.perm == notify.Granted, nil
}

// Show implements notify.Notifier.
func (n *Notifier) Show(note notify.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, note)
}

// Shown returns the notifications shown so far.
func (n *Notifier) Shown() []notify.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notification(nil), n.shown...)
}

// Tags returns the tags of the notifications shown so far.
func (n *Notifier) Tags() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.shown))
	for i, s := range n.shown {
		out[i] = s.Tag
	}
	return out
}
