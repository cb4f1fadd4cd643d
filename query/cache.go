package query

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of distinct selectors kept parsed.
const DefaultCacheSize = 1024

// Cache memoizes parsed selectors. Returned nodes are shared and must not be
// mutated by callers.
type Cache struct {
	entries *lru.Cache[string, *Node]
}

// NewCache creates a cache holding up to size parsed selectors.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, *Node](size)
	if err != nil {
		return nil, fmt.Errorf("create query cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Parse returns the cached parse of q, parsing and storing it on a miss.
// Syntax errors are not cached.
func (c *Cache) Parse(q string) (*Node, error) {
	if n, ok := c.entries.Get(q); ok {
		return n, nil
	}
	n, err := Parse(q)
	if err != nil {
		return nil, err
	}
	c.entries.Add(q, n)
	return n, nil
}

// Len returns the number of cached selectors.
func (c *Cache) Len() int {
	return c.entries.Len()
}
