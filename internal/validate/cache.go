package validate

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// DefaultCacheSize bounds the number of remembered verdicts.
const DefaultCacheSize = 256

// resultCache remembers verdicts by code digest and evicts oldest first.
type resultCache struct {
	mu    sync.Mutex
	limit int
	order []string
	items map[string]Result
}

func newResultCache(limit int) *resultCache {
	if limit < 0 {
		limit = 0
	}
	return &resultCache{limit: limit, items: make(map[string]Result)}
}

func codeKey(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func (c *resultCache) get(key string) (Result, bool) {
	if c == nil || c.limit == 0 {
		return Result{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.items[key]
	return res, ok
}

func (c *resultCache) put(key string, res Result) {
	if c == nil || c.limit == 0 {
		return
	}
	if res.Failure != nil && res.Failure.Kind == KindEvaluation {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; !ok {
		c.order = append(c.order, key)
	}
	c.items[key] = res
	for len(c.order) > c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.items, oldest)
	}
}

func (c *resultCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
