package llm

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := newResponseCache(5 * time.Minute)
		defer cache.Close()

		_, found := cache.get("non-existent")
		assert.False(t, found)

		resp := Response{Text: "TRANSACTIONS", Model: "test-model"}
		cache.set("key1", resp)

		retrieved, found := cache.get("key1")
		assert.True(t, found)
		assert.Equal(t, resp, retrieved)
		assert.Equal(t, 1, cache.size())
	})

	t.Run("expiration", func(t *testing.T) {
		cache := newResponseCache(50 * time.Millisecond)
		defer cache.Close()

		cache.set("key2", Response{Text: "NO_TRANSACTIONS"})

		_, found := cache.get("key2")
		assert.True(t, found)

		time.Sleep(100 * time.Millisecond)

		_, found = cache.get("key2")
		assert.False(t, found)
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := newResponseCache(5 * time.Minute)
		defer cache.Close()

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					cache.set("concurrent", Response{Text: "x"})
				}
			}()
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					cache.get("concurrent")
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, cache.size())
	})
}

func TestCacheKey_DistinguishesRequests(t *testing.T) {
	a := cacheKey(Request{Prompt: "hello"})
	b := cacheKey(Request{Prompt: "hello", JSON: true})
	c := cacheKey(Request{Prompt: "hello", System: "sys"})

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, cacheKey(Request{Prompt: "hello"}))
}
