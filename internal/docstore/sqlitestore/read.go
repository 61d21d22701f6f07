package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tandem/internal/docstore"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, path string) (docstore.Document, error) {
	coll, id, err := docstore.SplitDocPath(path)
	if err != nil {
		return docstore.Document{}, docstore.WrapOp("get", path, err)
	}
	doc, err := readDocument(ctx, s.db, coll, id)
	if err != nil {
		return docstore.Document{}, docstore.WrapOp("get", path, err)
	}
	return *doc, nil
}

// Query implements docstore.Store.
func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	q, err := q.Validate()
	if err != nil {
		return nil, docstore.WrapOp("query", q.Collection, err)
	}
	docs, err := runQuery(ctx, s.db, q)
	if err != nil {
		return nil, docstore.WrapOp("query", q.Collection, err)
	}
	return docs, nil
}

// readDocument returns one document, or ErrNotFound.
func readDocument(ctx context.Context, db queryer, coll, id string) (*docstore.Document, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, body, create_time, update_time
		FROM documents
		WHERE collection = ? AND id = ?
	`, coll, id)

	doc, err := scanDocument(row, coll)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// runQuery executes q and applies its exact semantics to the candidates.
// Returns an empty slice (not nil) if nothing matches.
func runQuery(ctx context.Context, db queryer, q docstore.Query) ([]docstore.Document, error) {
	query, params, err := compileQuery(q)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", classify(err))
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		doc, err := scanDocument(rows, q.Collection)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", classify(err))
	}

	return q.Apply(docs), nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner, coll string) (docstore.Document, error) {
	var (
		doc  docstore.Document
		body string
	)
	if err := row.Scan(&doc.ID, &body, &doc.CreateTime, &doc.UpdateTime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return doc, err
		}
		return doc, fmt.Errorf("scan document: %w", classify(err))
	}
	data, err := unmarshalBody(body)
	if err != nil {
		return doc, fmt.Errorf("document %s/%s: %w", coll, doc.ID, err)
	}
	doc.Data = data
	doc.Path = docstore.Join(coll, doc.ID)
	return doc, nil
}
