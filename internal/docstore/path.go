package docstore

import (
	"fmt"
	"strings"
)

// Join builds a path from segments: Join("conversations", id, "messages").
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitDocPath splits a document path into its parent collection and ID.
func SplitDocPath(path string) (collection, id string, err error) {
	segs, err := segments(path)
	if err != nil {
		return "", "", err
	}
	if len(segs)%2 != 0 {
		return "", "", fmt.Errorf("%q is a collection path, not a document path", path)
	}
	return strings.Join(segs[:len(segs)-1], "/"), segs[len(segs)-1], nil
}

// ValidateCollection checks that path names a collection.
func ValidateCollection(path string) error {
	segs, err := segments(path)
	if err != nil {
		return err
	}
	if len(segs)%2 != 1 {
		return fmt.Errorf("%q is a document path, not a collection path", path)
	}
	return nil
}

func segments(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if s == "" {
			return nil, fmt.Errorf("path %q has an empty segment", path)
		}
	}
	return segs, nil
}
