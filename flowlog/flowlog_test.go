package flowlog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendAndEntries(t *testing.T) {
	log := NewInMemoryFlowLog()

	log.Append("customer-1", "received %s", "CustomerCreated")
	log.Append("customer-1", "credit check complete")
	log.Append("customer-2", "received %s", "CustomerCreated")

	assert.Equal(t, []string{"received CustomerCreated", "credit check complete"}, log.Entries("customer-1"))
	assert.Equal(t, []string{"received CustomerCreated"}, log.Entries("customer-2"))
	assert.ElementsMatch(t, []string{"customer-1", "customer-2"}, log.Keys())
}

func TestEntriesReturnsSnapshot(t *testing.T) {
	log := NewInMemoryFlowLog()
	log.Append("k", "first")

	snapshot := log.Entries("k")
	log.Append("k", "second")

	assert.Equal(t, []string{"first"}, snapshot)
	assert.Len(t, log.Entries("k"), 2)
}

func TestConcurrentAppends(t *testing.T) {
	log := NewInMemoryFlowLog()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", n%2)
			for j := 0; j < 100; j++ {
				log.Append(key, "entry %d", j)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, log.Entries("key-0"), 500)
	assert.Len(t, log.Entries("key-1"), 500)
}
