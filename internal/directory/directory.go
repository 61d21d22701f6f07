// Package directory looks up accounts and organisations: the authoritative
// source behind the participant cache on conversations.
package directory

import (
	"context"
	"fmt"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
)

// Directory resolves accounts and organisation names.
type Directory interface {
	// Account returns the account, or an error wrapping
	// docstore.ErrNotFound.
	Account(ctx context.Context, id string) (model.Account, error)

	// OrganizationName returns the authoritative organisation name of the
	// account, or "" when it has none.
	OrganizationName(ctx context.Context, accountID string) (string, error)
}

// Store is a Directory reading accounts/{id} and organizations/{id}
// documents.
type Store struct {
	store docstore.Store
}

var _ Directory = (*Store)(nil)

// New returns a Directory over store.
func New(store docstore.Store) *Store {
	return &Store{store: store}
}

// Account implements Directory.
func (d *Store) Account(ctx context.Context, id string) (model.Account, error) {
	if id == "" {
		return model.Account{}, fmt.Errorf("account lookup: empty id: %w", docstore.ErrNotFound)
	}
	doc, err := d.store.Get(ctx, docstore.Join(model.Accounts, id))
	if err != nil {
		return model.Account{}, fmt.Errorf("account %s: %w", id, err)
	}
	return model.AccountFromDoc(doc), nil
}

// OrganizationName implements Directory. An organisation document, when
// referenced, wins over the name copied onto the account.
func (d *Store) OrganizationName(ctx context.Context, accountID string) (string, error) {
	acct, err := d.Account(ctx, accountID)
	if err != nil {
		return "", err
	}
	if acct.OrganizationID == "" {
		return acct.OrganizationName, nil
	}

	doc, err := d.store.Get(ctx, docstore.Join(model.Organizations, acct.OrganizationID))
	if docstore.IsNotFound(err) {
		return acct.OrganizationName, nil
	}
	if err != nil {
		return "", fmt.Errorf("organization %s: %w", acct.OrganizationID, err)
	}
	if name := doc.Data.String("name"); name != "" {
		return name, nil
	}
	return acct.OrganizationName, nil
}

// PutAccount creates or replaces an account document.
func (d *Store) PutAccount(ctx context.Context, a model.Account) error {
	if a.ID == "" {
		return fmt.Errorf("put account: empty id")
	}
	if _, err := d.store.Set(ctx, docstore.Join(model.Accounts, a.ID), a.Fields()); err != nil {
		return fmt.Errorf("put account %s: %w", a.ID, err)
	}
	return nil
}

// PutOrganization creates or replaces an organisation document.
func (d *Store) PutOrganization(ctx context.Context, id, name string) error {
	if _, err := d.store.Set(ctx, docstore.Join(model.Organizations, id), docstore.Fields{"name": name}); err != nil {
		return fmt.Errorf("put organization %s: %w", id, err)
	}
	return nil
}
