// Package cache keeps recently computed result sets keyed by the inputs
// that produced them.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/canectors/topapps/pkg/connector"
)

// Defaults used when the pipeline has no cache section.
const (
	DefaultSize = 128
	DefaultTTL  = 5 * time.Minute
)

// LoadFunc computes a result set on a cache miss.
type LoadFunc func(ctx context.Context) (*connector.ResultSet, error)

// Stats reports cache usage.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// Results is an expiring LRU of result sets.
type Results struct {
	lru    *expirable.LRU[string, *connector.ResultSet]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a cache sized from cfg. A nil cfg or zero fields take the defaults.
func New(cfg *connector.CacheConfig) *Results {
	size, ttl := DefaultSize, DefaultTTL
	if cfg != nil {
		if cfg.Size > 0 {
			size = cfg.Size
		}
		if cfg.TTLSeconds > 0 {
			ttl = time.Duration(cfg.TTLSeconds) * time.Second
		}
	}
	return &Results{lru: expirable.NewLRU[string, *connector.ResultSet](size, nil, ttl)}
}

// Key identifies the result of transforming p's sources with p's criteria.
// Source file size and modification time are part of the key so an
// edited file is never served from the cache.
func Key(p *connector.Pipeline) string {
	type sourceKey struct {
		Path      string `json:"path"`
		Format    string `json:"format,omitempty"`
		Delimiter string `json:"delimiter,omitempty"`
		Size      int64  `json:"size"`
		ModTime   int64  `json:"modTime"`
	}
	source := func(s connector.SourceConfig) sourceKey {
		k := sourceKey{Path: s.Path, Format: s.Format, Delimiter: s.Delimiter}
		if info, err := os.Stat(s.Path); err == nil {
			k.Size = info.Size()
			k.ModTime = info.ModTime().UnixNano()
		}
		return k
	}

	data, err := json.Marshal(struct {
		Apps     sourceKey               `json:"apps"`
		Reviews  sourceKey               `json:"reviews"`
		Columns  connector.ColumnMapping `json:"columns"`
		Criteria connector.Criteria      `json:"criteria"`
	}{
		Apps:     source(p.Sources.Apps),
		Reviews:  source(p.Sources.Reviews),
		Columns:  p.Columns.WithDefaults(),
		Criteria: p.Criteria,
	})
	if err != nil {
		// Every field is a plain value; fall back to the formatted struct.
		return fmt.Sprintf("%+v", p)
	}
	return string(data)
}

// Get returns the cached result set for p.
func (c *Results) Get(p *connector.Pipeline) (*connector.ResultSet, bool) {
	rs, ok := c.lru.Get(Key(p))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return rs, ok
}

// Add stores rs as the result for p.
func (c *Results) Add(p *connector.Pipeline, rs *connector.ResultSet) {
	c.lru.Add(Key(p), rs)
}

// GetOrLoad returns the cached result for p, calling load on a miss.
// Errors are not cached. The boolean reports a cache hit.
func (c *Results) GetOrLoad(ctx context.Context, p *connector.Pipeline, load LoadFunc) (*connector.ResultSet, bool, error) {
	key := Key(p)
	if rs, ok := c.lru.Get(key); ok {
		c.hits.Add(1)
		return rs, true, nil
	}
	c.misses.Add(1)

	rs, err := load(ctx)
	if err != nil {
		return nil, false, err
	}
	c.lru.Add(key, rs)
	return rs, false, nil
}

// Invalidate drops every entry whose sources include path.
func (c *Results) Invalidate(path string) int {
	quoted, _ := json.Marshal(path)
	needle := `"path":` + string(quoted)
	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.Contains(key, needle) && c.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

// Purge empties the cache.
func (c *Results) Purge() {
	c.lru.Purge()
}

// Stats returns hit and miss counters and the current size.
func (c *Results) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.lru.Len()}
}
