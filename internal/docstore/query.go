package docstore

import (
	"fmt"
	"sort"
)

// Op is a filter operator.
type Op string

const (
	// OpEqual matches documents whose field equals the value.
	OpEqual Op = "=="
	// OpArrayContains matches documents whose array field contains the value.
	OpArrayContains Op = "array-contains"
)

// Direction is a sort direction.
type Direction int

const (
	// Asc sorts ascending.
	Asc Direction = iota
	// Desc sorts descending.
	Desc
)

// Filter is a single predicate on a (dotted) field path.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents from one collection.
//
// Semantics:
//
//	FROM <Collection> WHERE <Filters AND-ed> ORDER BY <OrderBy> <Dir>, id ASC LIMIT <Limit>
//
// Documents missing the order-by field are excluded, matching hosted
// document stores. Ties are broken by document ID so results are
// deterministic.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Dir        Direction
	Limit      int
}

// From starts a query on collection.
func From(collection string) Query {
	return Query{Collection: collection}
}

// Where returns a copy of q with an extra filter.
func (q Query) Where(field string, op Op, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// Order returns a copy of q ordered by field.
func (q Query) Order(field string, dir Direction) Query {
	q.OrderBy = field
	q.Dir = dir
	return q
}

// Take returns a copy of q limited to n results (n <= 0 means no limit).
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Validate checks the query is well formed and normalises filter values.
func (q Query) Validate() (Query, error) {
	if err := ValidateCollection(q.Collection); err != nil {
		return q, err
	}
	filters := make([]Filter, len(q.Filters))
	for i, f := range q.Filters {
		if f.Field == "" {
			return q, fmt.Errorf("filter %d: empty field", i)
		}
		switch f.Op {
		case OpEqual, OpArrayContains:
		default:
			return q, fmt.Errorf("filter %d: unsupported operator %q", i, f.Op)
		}
		v, err := Normalize(f.Value)
		if err != nil {
			return q, fmt.Errorf("filter %d: %w", i, err)
		}
		filters[i] = Filter{Field: f.Field, Op: f.Op, Value: v}
	}
	q.Filters = filters
	return q, nil
}

// Matches reports whether data satisfies every filter of q.
func (q Query) Matches(data Fields) bool {
	for _, f := range q.Filters {
		v, ok := data.Get(f.Field)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if !Equal(v, f.Value) {
				return false
			}
		case OpArrayContains:
			arr, ok := v.([]any)
			if !ok {
				return false
			}
			found := false
			for _, elem := range arr {
				if Equal(elem, f.Value) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	if q.OrderBy != "" {
		if _, ok := data.Get(q.OrderBy); !ok {
			return false
		}
	}
	return true
}

// Apply filters, orders and limits docs, which must all belong to
// q.Collection. The input slice is not modified.
func (q Query) Apply(docs []Document) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if q.Matches(d.Data) {
			out = append(out, d)
		}
	}
	q.Sort(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// Sort orders docs by q.OrderBy (then ID) in place.
func (q Query) Sort(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if q.OrderBy != "" {
			a, _ := docs[i].Data.Get(q.OrderBy)
			b, _ := docs[j].Data.Get(q.OrderBy)
			if c := Compare(a, b); c != 0 {
				if q.Dir == Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return docs[i].ID < docs[j].ID
	})
}
