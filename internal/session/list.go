package session

import (
	"context"
	"fmt"

	"github.com/roach88/tandem/internal/docstore"
	"github.com/roach88/tandem/internal/model"
)

// List returns the session records of accountID, most recently active
// first.
func List(ctx context.Context, store docstore.Store, accountID string) ([]model.Session, error) {
	q := docstore.From(model.Sessions).
		Where("accountId", docstore.OpEqual, accountID).
		Order("lastActive", docstore.Desc)
	docs, err := store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]model.Session, len(docs))
	for i, doc := range docs {
		out[i] = model.SessionFromDoc(doc)
	}
	return out, nil
}
