package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStores(t *testing.T) {
	impls := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"file": func(t *testing.T) Store {
			return NewFile(filepath.Join(t.TempDir(), "state", "local.yaml"))
		},
	}

	for name, newStore := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			_, err := s.Get(ctx, "device_id")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "device_id", "d-1"))
			v, err := s.Get(ctx, "device_id")
			require.NoError(t, err)
			assert.Equal(t, "d-1", v)

			require.NoError(t, s.Set(ctx, "device_id", "d-2"))
			v, err = s.Get(ctx, "device_id")
			require.NoError(t, err)
			assert.Equal(t, "d-2", v)

			require.NoError(t, s.Delete(ctx, "device_id"))
			require.NoError(t, s.Delete(ctx, "device_id"))
			_, err = s.Get(ctx, "device_id")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFile_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.yaml")

	require.NoError(t, NewFile(path).Set(ctx, "device_id", "abc"))

	v, err := NewFile(path).Get(ctx, "device_id")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "device_id: abc\n", string(raw))
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_id: [unterminated"), 0o600))

	_, err := NewFile(path).Get(context.Background(), "device_id")
	assert.ErrorContains(t, err, "parse local state")
}

func TestFile_EmptyFileIsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := NewFile(path).Get(context.Background(), "device_id")
	assert.ErrorIs(t, err, ErrNotFound)
}
