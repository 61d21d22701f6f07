// Package config loads the tandem configuration file.
//
// The file is YAML. Before decoding it is checked against an embedded CUE
// schema, so unknown keys, wrong types and malformed durations are
// rejected with the offending path instead of being silently ignored.
// Keys that are absent keep their defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Defaults.
const (
	DefaultDriver             = "sqlite"
	DefaultStorePath          = "tandem.db"
	DefaultLocalState         = "tandem-state.yaml"
	DefaultPollInterval       = 250 * time.Millisecond
	DefaultHeartbeatInterval  = 60 * time.Second
	DefaultFreshnessWindow    = 30 * time.Second
	DefaultRefreshMinInterval = time.Second
	DefaultUnreadPolicy       = "reset"
	DefaultBackfillRate       = 5
	DefaultNotifications      = "undetermined"
)

// Config is the resolved configuration.
type Config struct {
	Store              StoreConfig
	LocalState         string
	HeartbeatInterval  time.Duration
	FreshnessWindow    time.Duration
	RefreshMinInterval time.Duration
	UnreadPolicy       string
	OrgPlaceholders    []string
	BackfillRate       int
	Notifications      string
	Identity           IdentityConfig
	MetricsAddr        string
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver       string
	Path         string
	PollInterval time.Duration
}

// IdentityConfig selects the identity provider: the HTTP service when URL
// is set, else the listed accounts.
type IdentityConfig struct {
	URL        string
	Issuer     string
	SigningKey string
	Accounts   []AccountConfig
}

// AccountConfig is one statically configured account.
type AccountConfig struct {
	ID               string `yaml:"id"`
	Secret           string `yaml:"secret"`
	DisplayName      string `yaml:"display_name"`
	Email            string `yaml:"email"`
	Avatar           string `yaml:"avatar"`
	OrganizationID   string `yaml:"organization_id"`
	OrganizationName string `yaml:"organization_name"`
	AccountGroupID   string `yaml:"account_group_id"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Driver:       DefaultDriver,
			Path:         DefaultStorePath,
			PollInterval: DefaultPollInterval,
		},
		LocalState:         DefaultLocalState,
		HeartbeatInterval:  DefaultHeartbeatInterval,
		FreshnessWindow:    DefaultFreshnessWindow,
		RefreshMinInterval: DefaultRefreshMinInterval,
		UnreadPolicy:       DefaultUnreadPolicy,
		OrgPlaceholders:    []string{"Unknown", "N/A", "-"},
		BackfillRate:       DefaultBackfillRate,
		Notifications:      DefaultNotifications,
	}
}

// file mirrors the YAML layout. Pointers distinguish absent keys.
type file struct {
	Store *struct {
		Driver       *string `yaml:"driver"`
		Path         *string `yaml:"path"`
		PollInterval *string `yaml:"poll_interval"`
	} `yaml:"store"`
	LocalState         *string   `yaml:"local_state"`
	HeartbeatInterval  *string   `yaml:"heartbeat_interval"`
	FreshnessWindow    *string   `yaml:"freshness_window"`
	RefreshMinInterval *string   `yaml:"refresh_min_interval"`
	UnreadPolicy       *string   `yaml:"unread_policy"`
	OrgPlaceholders    *[]string `yaml:"org_placeholders"`
	BackfillRate       *int      `yaml:"backfill_rate"`
	Notifications      *string   `yaml:"notifications"`
	Identity           *struct {
		URL        string          `yaml:"url"`
		Issuer     string          `yaml:"issuer"`
		SigningKey string          `yaml:"signing_key"`
		Accounts   []AccountConfig `yaml:"accounts"`
	} `yaml:"identity"`
	MetricsAddr *string `yaml:"metrics_addr"`
}

// Load reads the file at path. Relative store and local state paths are
// resolved against the file's directory. An empty path returns Default.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	cfg.Store.Path = resolve(dir, cfg.Store.Path)
	cfg.LocalState = resolve(dir, cfg.LocalState)
	return cfg, nil
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Parse validates and decodes YAML configuration.
func Parse(data []byte) (Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if raw == nil {
		return Default(), nil
	}
	if err := validate(raw); err != nil {
		return Config{}, err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return f.apply(Default())
}

// validate checks raw against the #Config schema.
func validate(raw any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	val := ctx.Encode(raw)
	if err := val.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Details: cueerrors.Errors(err)}
	}
	return nil
}

// ValidationError lists every schema violation in a configuration file.
type ValidationError struct {
	Details []cueerrors.Error
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "invalid config"
	}
	msg := "invalid config: " + e.Details[0].Error()
	if n := len(e.Details) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

// IsValidationError reports whether err is (or wraps) a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (f file) apply(cfg Config) (Config, error) {
	var err error
	if s := f.Store; s != nil {
		setString(&cfg.Store.Driver, s.Driver)
		setString(&cfg.Store.Path, s.Path)
		if cfg.Store.PollInterval, err = duration("store.poll_interval", s.PollInterval, cfg.Store.PollInterval, true); err != nil {
			return Config{}, err
		}
	}
	setString(&cfg.LocalState, f.LocalState)
	if cfg.HeartbeatInterval, err = duration("heartbeat_interval", f.HeartbeatInterval, cfg.HeartbeatInterval, false); err != nil {
		return Config{}, err
	}
	if cfg.FreshnessWindow, err = duration("freshness_window", f.FreshnessWindow, cfg.FreshnessWindow, false); err != nil {
		return Config{}, err
	}
	if cfg.RefreshMinInterval, err = duration("refresh_min_interval", f.RefreshMinInterval, cfg.RefreshMinInterval, true); err != nil {
		return Config{}, err
	}
	setString(&cfg.UnreadPolicy, f.UnreadPolicy)
	if f.OrgPlaceholders != nil {
		cfg.OrgPlaceholders = append([]string(nil), (*f.OrgPlaceholders)...)
	}
	if f.BackfillRate != nil {
		cfg.BackfillRate = *f.BackfillRate
	}
	setString(&cfg.Notifications, f.Notifications)
	if id := f.Identity; id != nil {
		cfg.Identity = IdentityConfig{
			URL:        id.URL,
			Issuer:     id.Issuer,
			SigningKey: id.SigningKey,
			Accounts:   id.Accounts,
		}
		if cfg.Identity.URL != "" && cfg.Identity.SigningKey == "" {
			return Config{}, fmt.Errorf("identity.signing_key is required with identity.url")
		}
	}
	setString(&cfg.MetricsAddr, f.MetricsAddr)
	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// duration parses an optional duration. Zero is accepted only when
// allowZero is set.
func duration(key string, v *string, def time.Duration, allowZero bool) (time.Duration, error) {
	if v == nil {
		return def, nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, *v)
	}
	return d, nil
}
