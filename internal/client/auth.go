package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/session"
)

// Login authenticates with the identity provider and signs this device in:
// the account's directory entry is refreshed, the session is registered
// and the account's conversations and reminders are followed. A previous
// sign-in on this client is ended first.
func (c *Client) Login(ctx context.Context, identifier, secret string) (model.Account, error) {
	if c.provider == nil {
		return model.Account{}, fmt.Errorf("login: no identity provider configured")
	}
	acct, err := c.provider.Authenticate(ctx, identifier, secret)
	if err != nil {
		return model.Account{}, fmt.Errorf("login: %w", err)
	}
	if err := c.SignIn(ctx, acct); err != nil {
		return model.Account{}, err
	}
	return acct, nil
}

// SignIn signs this device in as an already authenticated account.
func (c *Client) SignIn(ctx context.Context, acct model.Account) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	if acct.ID == "" {
		return fmt.Errorf("sign in: empty account id")
	}

	if c.currentAccount() != nil {
		c.teardown(ctx)
		c.setAccount(nil)
	}

	if err := c.dir.PutAccount(ctx, acct); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if _, err := c.registry.Register(ctx, acct.ID); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	gen := c.setAccount(&acct)
	steps := []func() error{
		func() error {
			return c.arbitrator.Start(ctx, acct.ID, func() { c.signedInElsewhere(gen) })
		},
		func() error { return c.sync.Start(ctx, acct.ID) },
		func() error { return c.reminders.Start(ctx, acct.GroupID()) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			c.teardown(ctx)
			c.setAccount(nil)
			return fmt.Errorf("sign in: %w", err)
		}
	}

	c.logger.Info("signed in", "account", acct.ID)
	return nil
}

// Logout ends the sign-in and deletes this device's session record.
func (c *Client) Logout(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.isClosed() {
		return ErrClosed
	}
	acct := c.currentAccount()
	if acct == nil {
		return ErrNotSignedIn
	}

	c.teardown(ctx)
	c.setAccount(nil)

	err := c.registry.Unregister(ctx)
	if err != nil && !errors.Is(err, session.ErrNotRegistered) {
		return fmt.Errorf("logout: %w", err)
	}
	c.logger.Info("signed out", "account", acct.ID)
	return nil
}

// signedInElsewhere handles losing arbitration. Runs on the loop: local
// state is dropped and the notice emitted at once; subscriptions are
// disposed off the loop.
func (c *Client) signedInElsewhere(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.account == nil {
		c.mu.Unlock()
		return
	}
	accountID := c.account.ID
	c.account = nil
	c.gen++
	c.mu.Unlock()

	c.registry.Stop()
	c.emit(Notice{
		Kind:      NoticeSignedInElsewhere,
		AccountID: accountID,
		Message:   "This account was signed in on another device.",
	})
	c.changed()

	go func() {
		c.opMu.Lock()
		defer c.opMu.Unlock()
		if c.isClosed() || c.currentAccount() != nil {
			return
		}
		c.teardown(context.Background())
	}()
}

// teardown disposes every subscription and timer of the current sign-in.
// Must not run on the loop.
func (c *Client) teardown(ctx context.Context) {
	c.registry.Stop()
	c.arbitrator.Stop()
	c.reminders.Stop()
	if err := c.channel.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("close conversation during sign-out", "error", err)
	}
	if err := c.sync.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Debug("stop conversation sync during sign-out", "error", err)
	}
}

// setAccount replaces the signed-in account and returns the new
// generation.
func (c *Client) setAccount(acct *model.Account) uint64 {
	c.mu.Lock()
	c.account = acct
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	c.loop.Post(c.changed)
	return gen
}

func (c *Client) currentAccount() *model.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.account == nil {
		return nil
	}
	acct := *c.account
	return &acct
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// self returns the signed-in account or ErrNotSignedIn.
func (c *Client) self() (model.Account, error) {
	if c.isClosed() {
		return model.Account{}, ErrClosed
	}
	acct := c.currentAccount()
	if acct == nil {
		return model.Account{}, ErrNotSignedIn
	}
	return *acct, nil
}
