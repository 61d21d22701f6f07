package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs returns a generator producing prefix-1, prefix-2, ...
//
// Used wherever production code takes an ID generator (store Add, message
// ids, device ids) so test expectations and golden files are stable.
//
// Thread-safety: the returned function is safe for concurrent use.
func SequentialIDs(prefix string) func() string {
	if prefix == "" {
		prefix = "id"
	}
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
