package sqlitestore

import (
	"fmt"
	"strings"

	"github.com/roach88/tandem/internal/docstore"
)

// compileQuery converts a validated docstore.Query to parameterized SQL.
// Returns (sql, params, error).
//
// The SQL narrows the candidate rows; docstore.Query.Apply stays the
// authority for matching, ordering and limiting, because SQLite's JSON
// functions fold booleans into integers and order mixed types differently.
// For that reason LIMIT is never pushed down.
//
// Values are always parameterized, never interpolated. Every query has an
// ORDER BY with the document id as tiebreaker.
func compileQuery(q docstore.Query) (string, []any, error) {
	where := []string{"collection = ?"}
	params := []any{q.Collection}

	for i, f := range q.Filters {
		sql, fp, err := compileFilter(f)
		if err != nil {
			return "", nil, fmt.Errorf("filter %d: %w", i, err)
		}
		if sql == "" {
			continue
		}
		where = append(where, sql)
		params = append(params, fp...)
	}

	order := "id COLLATE BINARY ASC"
	if q.OrderBy != "" {
		where = append(where, "json_type(body, ?) IS NOT NULL")
		params = append(params, jsonPath(q.OrderBy))

		dir := "ASC"
		if q.Dir == docstore.Desc {
			dir = "DESC"
		}
		order = fmt.Sprintf("json_extract(body, ?) %s, %s", dir, order)
		params = append(params, jsonPath(q.OrderBy))
	}

	sql := fmt.Sprintf("SELECT id, body, create_time, update_time FROM documents WHERE %s ORDER BY %s",
		strings.Join(where, " AND "),
		order)

	return sql, params, nil
}

// compileFilter compiles one filter. Filters on composite values compile
// to "" and are left to Query.Apply.
func compileFilter(f docstore.Filter) (string, []any, error) {
	path := jsonPath(f.Field)

	switch f.Op {
	case docstore.OpEqual:
		if f.Value == nil {
			return "json_type(body, ?) = 'null'", []any{path}, nil
		}
		param, ok := scalarParam(f.Value)
		if !ok {
			return "", nil, nil
		}
		return "json_extract(body, ?) = ?", []any{path, param}, nil

	case docstore.OpArrayContains:
		param, ok := scalarParam(f.Value)
		if !ok {
			return "json_type(body, ?) = 'array'", []any{path}, nil
		}
		return "EXISTS (SELECT 1 FROM json_each(body, ?) WHERE value = ?)", []any{path, param}, nil

	default:
		return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
	}
}

// scalarParam converts a normalised value to a SQL parameter.
// Booleans bind as 0/1, which is how json_extract reports them.
func scalarParam(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case int64:
		return val, true
	case bool:
		if val {
			return int64(1), true
		}
		return int64(0), true
	default:
		return nil, false
	}
}

// jsonPath converts a dotted field path to a SQLite JSON path with every
// label quoted, so keys containing '-' or '@' are addressed literally.
func jsonPath(field string) string {
	parts := docstore.SplitFieldPath(field)
	var b strings.Builder
	b.WriteString("$")
	for _, p := range parts {
		b.WriteString(`."`)
		b.WriteString(strings.ReplaceAll(p, `"`, `\"`))
		b.WriteString(`"`)
	}
	return b.String()
}
