package sqlitestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/tandem/internal/docstore"
)

// marshalBody converts resolved document fields to JSON TEXT for storage.
// Map keys are emitted sorted; HTML escaping is disabled so bodies are
// stored verbatim.
func marshalBody(data docstore.Fields) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(data)); err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// unmarshalBody parses JSON TEXT back into document fields.
// Numbers are decoded via json.Number so int64 values beyond 2^53 survive;
// a non-integer number means the row was not written by this package.
func unmarshalBody(data string) (docstore.Fields, error) {
	if data == "" || data == "{}" {
		return docstore.Fields{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}
	out, err := fromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal body: %w", err)
	}
	return docstore.Fields(out.(map[string]any)), nil
}

// fromJSON converts decoded JSON into the docstore value set.
func fromJSON(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %s", val)
		}
		return n, nil
	case []any:
		for i, elem := range val {
			n, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			val[i] = n
		}
		return val, nil
	case map[string]any:
		for k, elem := range val {
			n, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			val[k] = n
		}
		return val, nil
	default:
		return val, nil
	}
}
