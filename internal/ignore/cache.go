package ignore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of compiled matchers kept by NewCache(0).
const DefaultCacheSize = 128

// Cache shares compiled matchers between sources watching the same directory
// with the same ignore set. Uses LRU eviction to bound memory in long-running
// processes.
type Cache struct {
	matchers *lru.Cache[string, *Matcher]
}

// NewCache creates a cache holding up to size matchers.
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *Matcher](size)
	if err != nil {
		return nil, fmt.Errorf("create matcher cache: %w", err)
	}
	return &Cache{matchers: c}, nil
}

// Get returns the matcher for root, patterns and gitignore lines, compiling
// it on a miss. patterns are expected in canonical (sorted, de-duplicated)
// order.
func (c *Cache) Get(root string, patterns []string, gitignore ...string) (*Matcher, error) {
	key := cacheKey(root, patterns, gitignore)
	if m, ok := c.matchers.Get(key); ok {
		return m, nil
	}

	m, err := Compile(root, patterns, gitignore...)
	if err != nil {
		return nil, err
	}
	c.matchers.Add(key, m)
	return m, nil
}

// cacheKey identifies a matcher. gitignore content is folded into a digest so
// an edited .gitignore compiles a new matcher.
func cacheKey(root string, patterns, gitignore []string) string {
	key := filepath.Clean(root) + "\x00" + strings.Join(patterns, "\x00")
	if len(gitignore) == 0 {
		return key
	}
	return fmt.Sprintf("%s\x00git:%016x", key, xxhash.Sum64String(strings.Join(gitignore, "\n")))
}

// Len returns the number of cached matchers.
func (c *Cache) Len() int {
	return c.matchers.Len()
}
