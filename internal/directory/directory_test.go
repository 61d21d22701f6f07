package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
)

func TestAccount(t *testing.T) {
	ctx := context.Background()
	d := New(docstore.NewMemory())

	require.NoError(t, d.PutAccount(ctx, model.Account{ID: "alice", DisplayName: "Alice", Email: "alice@example.com"}))

	acct, err := d.Account(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", acct.DisplayName)

	_, err = d.Account(ctx, "nobody")
	assert.True(t, docstore.IsNotFound(err))

	_, err = d.Account(ctx, "")
	assert.True(t, docstore.IsNotFound(err))
}

func TestOrganizationName(t *testing.T) {
	ctx := context.Background()
	d := New(docstore.NewMemory())

	require.NoError(t, d.PutOrganization(ctx, "org-1", "Acme Corp"))
	require.NoError(t, d.PutAccount(ctx, model.Account{ID: "a", OrganizationID: "org-1", OrganizationName: "stale"}))
	require.NoError(t, d.PutAccount(ctx, model.Account{ID: "b", OrganizationName: "Initech"}))
	require.NoError(t, d.PutAccount(ctx, model.Account{ID: "c", OrganizationID: "missing", OrganizationName: "Fallback"}))
	require.NoError(t, d.PutAccount(ctx, model.Account{ID: "d"}))

	for id, want := range map[string]string{"a": "Acme Corp", "b": "Initech", "c": "Fallback", "d": ""} {
		got, err := d.OrganizationName(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, want, got, id)
	}

	_, err := d.OrganizationName(ctx, "nobody")
	assert.True(t, docstore.IsNotFound(err))
}
