package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/tandem/internal/chat"
	"github.com/roach88/tandem/internal/client"
	"github.com/roach88/tandem/internal/config"
	"github.com/roach88/tandem/internal/device"
	"github.com/roach88/tandem/internal/directory"
	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/docstore/sqlitestore"
	"github.com/roach88/tandem/internal/identity"
	"github.com/roach88/tandem/internal/kv"
	"github.com/roach88/tandem/internal/metrics"
	"github.com/roach88/tandem/internal/model"
	"github.com/roach88/tandem/internal/notify"
)

// SecretEnv is read when --secret is not given.
const SecretEnv = "TANDEM_SECRET"

// AuthOptions holds the sign-in flags of commands that act as an account.
type AuthOptions struct {
	As     string
	Secret string
}

func addAuthFlags(cmd *cobra.Command, auth *AuthOptions) {
	cmd.Flags().StringVar(&auth.As, "as", "", "account id or email to sign in as (required)")
	cmd.Flags().StringVar(&auth.Secret, "secret", "", "account secret (default $"+SecretEnv+")")
	_ = cmd.MarkFlagRequired("as")
}

// env is everything one command invocation runs against.
type env struct {
	cfg      config.Config
	logger   *slog.Logger
	store    docstore.Store
	local    kv.Store
	deviceID string
	out      *Output
	closers  []func() error
}

// openEnv loads the configuration and opens the store and local state.
func openEnv(cmd *cobra.Command, opts *RootOptions) (*env, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := opts.logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &env{
		cfg:    cfg,
		logger: logger,
		local:  kv.NewFile(cfg.LocalState),
		out:    &Output{Format: opts.Format, Writer: cmd.OutOrStdout()},
	}
	if e.store, err = e.openStore(); err != nil {
		return nil, err
	}

	e.deviceID, err = device.New(e.local).GetOrCreate(cmd.Context())
	if err != nil {
		e.Close()
		return nil, WrapExitError(ExitCommandError, "failed to read device id", err)
	}
	logger.Debug("environment ready", "driver", cfg.Store.Driver, "device", e.deviceID)
	return e, nil
}

func (e *env) openStore() (docstore.Store, error) {
	switch e.cfg.Store.Driver {
	case "memory":
		return docstore.NewMemory(), nil
	case "sqlite":
		if dir := filepath.Dir(e.cfg.Store.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, WrapExitError(ExitCommandError, "failed to create store directory", err)
			}
		}
		st, err := sqlitestore.Open(e.cfg.Store.Path,
			sqlitestore.WithLogger(e.logger),
			sqlitestore.WithPollInterval(e.cfg.Store.PollInterval))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open store", err)
		}
		e.closers = append(e.closers, st.Close)
		return st, nil
	}
	return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown store driver %q", e.cfg.Store.Driver))
}

// Close releases everything the environment opened, newest first.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Error("error closing", "error", err)
		}
	}
	e.closers = nil
}

func (e *env) directory() *directory.Store {
	return directory.New(e.store)
}

// provider builds the identity provider the configuration selects.
func (e *env) provider() identity.Provider {
	id := e.cfg.Identity
	if id.URL != "" {
		return identity.NewHTTP(id.URL, []byte(id.SigningKey), identity.WithIssuer(id.Issuer))
	}
	accounts := make([]identity.StaticAccount, 0, len(id.Accounts))
	for _, a := range id.Accounts {
		accounts = append(accounts, identity.StaticAccount{
			Account: model.Account{
				ID:               a.ID,
				DisplayName:      a.DisplayName,
				Email:            a.Email,
				Avatar:           a.Avatar,
				OrganizationID:   a.OrganizationID,
				OrganizationName: a.OrganizationName,
				AccountGroupID:   a.AccountGroupID,
			},
			Secret: a.Secret,
		})
	}
	return identity.NewStatic(accounts)
}

// notifier prints notifications to w. The configured permission is the
// starting state; a request while undetermined is granted.
func (e *env) notifier(w io.Writer) (*notify.Console, error) {
	perm, err := notify.ParsePermission(e.cfg.Notifications)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid notifications setting", err)
	}
	return notify.NewConsole(w, perm, notify.Granted), nil
}

// newClient creates a client wired from the configuration.
func (e *env) newClient(rec metrics.Recorder, extra ...client.Option) (*client.Client, error) {
	w := e.out.Writer
	if e.out.Format == "json" {
		w = io.Discard
	}
	n, err := e.notifier(w)
	if err != nil {
		return nil, err
	}
	policy, err := chat.ParseUnreadPolicy(e.cfg.UnreadPolicy)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid unread policy", err)
	}

	opts := []client.Option{
		client.WithProvider(e.provider()),
		client.WithNotifier(n),
		client.WithLogger(e.logger),
		client.WithMetrics(rec),
		client.WithDescriptor(device.Describe(Version)),
		client.WithHeartbeatInterval(e.cfg.HeartbeatInterval),
		client.WithFreshnessWindow(e.cfg.FreshnessWindow),
		client.WithRefreshMinInterval(e.cfg.RefreshMinInterval),
		client.WithUnreadPolicy(policy),
		client.WithPlaceholders(e.cfg.OrgPlaceholders),
		client.WithBackfillRate(e.cfg.BackfillRate),
	}
	c := client.New(e.store, e.deviceID, append(opts, extra...)...)
	e.closers = append(e.closers, c.Close)
	return c, nil
}

// signIn creates a client and signs it in.
func (e *env) signIn(ctx context.Context, auth *AuthOptions, rec metrics.Recorder, extra ...client.Option) (*client.Client, error) {
	c, err := e.newClient(rec, extra...)
	if err != nil {
		return nil, err
	}
	secret := auth.Secret
	if secret == "" {
		secret = os.Getenv(SecretEnv)
	}
	acct, err := c.Login(ctx, auth.As, secret)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return nil, WrapExitError(ExitCommandError, "sign in failed", err)
		}
		return nil, WrapExitError(ExitFailure, "sign in failed", err)
	}
	e.logger.Debug("signed in", "account", acct.ID)
	if err := c.Settle(ctx); err != nil {
		return nil, WrapExitError(ExitFailure, "sign in failed", err)
	}
	return c, nil
}
