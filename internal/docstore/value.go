package docstore

import (
	"fmt"
	"sort"
	"strings"
)

// Fields is the data of a document, or a partial update to one.
type Fields map[string]any

// serverTimestamp is the sentinel type behind ServerTimestamp.
type serverTimestamp struct{}

// ServerTimestamp is replaced by the store's clock (Unix milliseconds) when
// written. All sentinels in one write resolve to the same value, which is
// reported back in WriteResult.UpdateTime.
var ServerTimestamp = serverTimestamp{}

// increment is the sentinel type returned by Increment.
type increment struct{ delta int64 }

// Increment adds delta to the current integer value of a field atomically.
// A missing field is treated as 0.
func Increment(delta int64) any {
	return increment{delta: delta}
}

// Normalize validates v and converts it to the canonical value set:
// string, int64, bool, []any, map[string]any, nil and the write sentinels.
// Integers of any width become int64; []string becomes []any; Fields
// becomes map[string]any. Floats are rejected.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string, bool, int64, serverTimestamp, increment:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not supported: %v", val)
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return arr, nil
	case []any:
		arr := make([]any, len(val))
		for i, elem := range val {
			n, err := Normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = n
		}
		return arr, nil
	case Fields:
		return normalizeMap(val)
	case map[string]any:
		return normalizeMap(val)
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func normalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, elem := range m {
		n, err := Normalize(elem)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// NormalizeFields normalises every value of f.
func NormalizeFields(f Fields) (Fields, error) {
	m, err := normalizeMap(f)
	if err != nil {
		return nil, err
	}
	return Fields(m), nil
}

// Clone returns a deep copy of f.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	return Fields(cloneMap(f))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case Fields:
		return cloneMap(val)
	case []any:
		arr := make([]any, len(val))
		for i, elem := range val {
			arr[i] = cloneValue(elem)
		}
		return arr
	default:
		return val
	}
}

// FieldPath joins keys into a dotted field path. Keys containing '.',
// '`' or a backslash are wrapped in backticks so each addresses one map key.
func FieldPath(keys ...string) string {
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('.')
		}
		if k != "" && !strings.ContainsAny(k, ".`\\") {
			b.WriteString(k)
			continue
		}
		b.WriteByte('`')
		for _, r := range k {
			if r == '`' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('`')
	}
	return b.String()
}

// SplitFieldPath splits a field path built by FieldPath back into keys.
// Dots inside backtick-quoted keys do not separate.
func SplitFieldPath(path string) []string {
	var (
		keys   []string
		cur    strings.Builder
		quoted bool
		escape bool
	)
	for _, r := range path {
		switch {
		case escape:
			cur.WriteRune(r)
			escape = false
		case quoted && r == '\\':
			escape = true
		case r == '`':
			quoted = !quoted
		case !quoted && r == '.':
			keys = append(keys, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(keys, cur.String())
}

// Get returns the value at a dotted field path ("lastMessage.senderId").
func (f Fields) Get(path string) (any, bool) {
	var cur any = map[string]any(f)
	for _, part := range SplitFieldPath(path) {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path, or "" if absent or not a string.
func (f Fields) String(path string) string {
	v, _ := f.Get(path)
	s, _ := v.(string)
	return s
}

// Int returns the integer at path, or 0 if absent or not an integer.
func (f Fields) Int(path string) int64 {
	v, _ := f.Get(path)
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	}
	return 0
}

// Bool returns the bool at path, or false if absent or not a bool.
func (f Fields) Bool(path string) bool {
	v, _ := f.Get(path)
	b, _ := v.(bool)
	return b
}

// Map returns the nested map at path, or nil.
func (f Fields) Map(path string) Fields {
	v, _ := f.Get(path)
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	return Fields(m)
}

// Strings returns the string elements of the array at path.
func (f Fields) Strings(path string) []string {
	v, _ := f.Get(path)
	arr, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return append([]string(nil), ss...)
		}
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, elem := range arr {
		if s, ok := elem.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Fields:
		return m, true
	}
	return nil, false
}

// setPath assigns v at a dotted path, creating intermediate maps.
// A non-map value in the way is replaced.
func setPath(m map[string]any, path string, v any) {
	parts := SplitFieldPath(path)
	cur := m
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			next = make(map[string]any)
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

// resolveSentinels replaces write sentinels in v with concrete values.
// prev is the value currently stored at the same position (for Increment).
func resolveSentinels(v any, prev any, now int64) any {
	switch val := v.(type) {
	case serverTimestamp:
		return now
	case increment:
		base, _ := prev.(int64)
		return base + val.delta
	case map[string]any:
		prevMap, _ := asMap(prev)
		out := make(map[string]any, len(val))
		for k, elem := range val {
			var p any
			if prevMap != nil {
				p = prevMap[k]
			}
			out[k] = resolveSentinels(elem, p, now)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = resolveSentinels(elem, nil, now)
		}
		return out
	default:
		return val
	}
}

// ApplySet resolves sentinels in a full-document write.
// Keys are taken literally (no dotted paths).
func ApplySet(prev Fields, data Fields, now int64) Fields {
	out := make(Fields, len(data))
	for k, v := range data {
		var p any
		if prev != nil {
			p = prev[k]
		}
		out[k] = resolveSentinels(v, p, now)
	}
	return out
}

// ApplyUpdate merges a partial update into a copy of prev.
// Keys are dotted field paths; keys are applied in sorted order so a parent
// path is written before its children.
func ApplyUpdate(prev Fields, update Fields, now int64) Fields {
	out := prev.Clone()
	if out == nil {
		out = Fields{}
	}
	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p, _ := out.Get(k)
		setPath(out, k, resolveSentinels(update[k], p, now))
	}
	return out
}

// Compare orders two field values. Values of different kinds order by kind:
// nil < bool < int64 < string < array < map.
func Compare(a, b any) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return cmpInt(int64(ra), int64(rb))
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case int64:
		return cmpInt(av, b.(int64))
	case string:
		return strings.Compare(av, b.(string))
	}
	return 0
}

// Equal reports whether two normalised values are equal.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := asMap(b)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, ok := bv[k]
			if !ok || !Equal(v, other) {
				return false
			}
		}
		return true
	}
	if kindRank(a) != kindRank(b) {
		return false
	}
	return Compare(a, b) == 0
}

func kindRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int64:
		return 2
	case string:
		return 3
	case []any:
		return 4
	case map[string]any, Fields:
		return 5
	}
	return 6
}

func cmpInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
