package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs(t *testing.T) {
	gen := SequentialIDs("msg")
	assert.Equal(t, "msg-1", gen())
	assert.Equal(t, "msg-2", gen())

	assert.Equal(t, "id-1", SequentialIDs("")())
}

func TestSequentialIDs_ThreadSafe(t *testing.T) {
	gen := SequentialIDs("x")

	var wg sync.WaitGroup
	seen := make(chan string, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- gen()
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]bool)
	for id := range seen {
		unique[id] = true
	}
	assert.Len(t, unique, 100)
}
