// Package notify abstracts the platform notification service: a
// tri-state permission, a permission request, and showing a notification
// with a dedupe tag and a click callback.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Permission is the platform notification permission.
type Permission int

const (
	// Undetermined: the user has not been asked yet.
	Undetermined Permission = iota
	// Granted: notifications may be shown.
	Granted
	// Denied: notifications must not be shown. Requests stay denied.
	Denied
)

// String returns the permission name as used in configuration.
func (p Permission) String() string {
	switch p {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "undetermined"
	}
}

// ParsePermission parses "granted", "denied" or "undetermined".
func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "granted":
		return Granted, nil
	case "denied":
		return Denied, nil
	case "", "undetermined", "default":
		return Undetermined, nil
	}
	return Undetermined, fmt.Errorf("unknown notification permission %q", s)
}

// Notification is one local notification.
type Notification struct {
	Title string
	Body  string
	Icon  string
	// Tag identifies the notification; a new notification with the same
	// tag replaces the previous one instead of stacking.
	Tag string
	// OnClick runs when the user activates the notification. May be nil.
	OnClick func()
}

// Notifier is the platform notification service.
//
// Thread-safety: implementations must be safe for concurrent use.
type Notifier interface {
	// Permission returns the current permission.
	Permission() Permission

	// RequestPermission asks the user for permission and reports whether
	// it is granted afterwards.
	RequestPermission(ctx context.Context) (bool, error)

	// Show displays n. Callers check Permission first.
	Show(n Notification)
}

// Console writes notifications as lines to an io.Writer. It stands in for
// a desktop notification service in the CLI.
//
// A request while Undetermined resolves to the configured answer; Granted
// and Denied are final.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	perm   Permission
	answer Permission
	shown  map[string]Notification // latest notification per tag
}

var _ Notifier = (*Console)(nil)

// NewConsole returns a Console writing to w with the given starting
// permission. answer is what a permission request resolves to when the
// permission is undetermined.
func NewConsole(w io.Writer, perm, answer Permission) *Console {
	return &Console{
		w:      w,
		perm:   perm,
		answer: answer,
		shown:  make(map[string]Notification),
	}
}

// Permission implements Notifier.
func (c *Console) Permission() Permission {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perm
}

// RequestPermission implements Notifier.
func (c *Console) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.perm == Undetermined {
		c.perm = c.answer
	}
	return c.perm == Granted, nil
}

// Show implements Notifier.
func (c *Console) Show(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n.Tag != "" {
		c.shown[n.Tag] = n
	}
	fmt.Fprintf(c.w, "[notification] %s: %s\n", n.Title, n.Body)
}

// Click activates the latest notification with tag, as a user would.
// Reports whether one was found.
func (c *Console) Click(tag string) bool {
	c.mu.Lock()
	n, ok := c.shown[tag]
	c.mu.Unlock()
	if !ok {
		return false
	}
	if n.OnClick != nil {
		n.OnClick()
	}
	return true
}
