// Package device identifies this installation: a random id generated once
// and kept in local storage, plus a descriptor of the host recorded on
// session documents. The id identifies an installation, not a user.
package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/tandem/internal/kv"
)

// StorageKey is the local storage key holding the device id.
const StorageKey = "device_id"

// Identity produces and persists the device id.
type Identity struct {
	store kv.Store
	newID func() string
}

// New returns an Identity backed by store.
func New(store kv.Store) *Identity {
	return &Identity{
		store: store,
		newID: func() string { return uuid.NewString() },
	}
}

// GetOrCreate returns the persisted device id, generating and persisting a
// random UUID on first use.
func (i *Identity) GetOrCreate(ctx context.Context) (string, error) {
	id, err := i.store.Get(ctx, StorageKey)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	id = i.newID()
	if err := i.store.Set(ctx, StorageKey, id); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}

// Descriptor describes the host a session runs on.
type Descriptor struct {
	UserAgent string `json:"userAgent"`
	Platform  string `json:"platform"`
	Locale    string `json:"locale,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
}

// Describe inspects the current process environment. Missing values are
// left empty.
func Describe(version string) Descriptor {
	host, _ := os.Hostname()
	return Descriptor{
		UserAgent: "tandem/" + version + " (" + runtime.Version() + ")",
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Locale:    locale(),
		Hostname:  host,
	}
}

// locale reads the POSIX locale variables in priority order and strips the
// encoding suffix ("en_US.UTF-8" -> "en_US").
func locale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := os.Getenv(key)
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		return v
	}
	return ""
}
