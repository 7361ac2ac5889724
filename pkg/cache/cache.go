/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: cache.go
Description: Size-bounded LRU cache of validated rule proposals keyed by failure fingerprint.
Entries whose referenced symbols are missing from the grammar being consulted are treated as
misses and evicted. Export and Import preserve recency order for persistence.
*/

package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/kleascm/akaylee-parser/pkg/grammar"
)

// DefaultCapacity is used when a non-positive capacity is requested
const DefaultCapacity = 1024

// Entry is the persisted form of one cached proposal
type Entry struct {
	Key        string                 `json:"key"`
	Proposal   grammar.ProposalRecord `json:"proposal"`
	InsertedAt time.Time              `json:"inserted_at"`
}

type item struct {
	proposal   grammar.Proposal
	record     grammar.ProposalRecord
	insertedAt time.Time
}

// Stats reports cache activity
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Stale     uint64 `json:"stale"`
	Inserts   uint64 `json:"inserts"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// Cache is safe for concurrent use
type Cache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, item]
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	stale     atomic.Uint64
	inserts   atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache holding at most capacity entries
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{capacity: capacity}
	lru, err := simplelru.NewLRU[string, item](capacity, func(string, item) {
		c.evictions.Add(1)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rule cache: %w", err)
	}
	c.lru = lru
	return c, nil
}

// Lookup returns the proposal cached under key if every symbol it references
// is available in snap or supplied by the proposal itself. Stale entries are removed.
func (c *Cache) Lookup(key string, snap *grammar.Snapshot) (grammar.Proposal, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.lru.Get(key)
	if !ok {
		c.misses.Add(1)
		return grammar.Proposal{}, false
	}
	if missing := it.proposal.MissingSymbols(snap); len(missing) > 0 {
		c.lru.Remove(key)
		c.stale.Add(1)
		c.misses.Add(1)
		return grammar.Proposal{}, false
	}
	c.hits.Add(1)
	return it.proposal, true
}

// Peek returns the entry stored under key without touching recency or staleness
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.lru.Peek(key)
	if !ok {
		return Entry{}, false
	}
	return Entry{Key: key, Proposal: it.record, InsertedAt: it.insertedAt}, true
}

// Insert stores p under key, making it the most recently used entry
func (c *Cache) Insert(key string, p grammar.Proposal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, item{proposal: p, record: p.Record(), insertedAt: time.Now().UTC()})
	c.inserts.Add(1)
}

// Remove drops key from the cache
func (c *Cache) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Remove(key)
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Export returns the cached entries from least to most recently used
func (c *Cache) Export() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.lru.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		it, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		out = append(out, Entry{Key: k, Proposal: it.record, InsertedAt: it.insertedAt})
	}
	return out
}

// Import adds entries in order, so the last entry becomes the most recently
// used. Nothing is imported if any entry cannot be decoded.
func (c *Cache) Import(entries []Entry) error {
	items := make([]item, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return fmt.Errorf("cache entry %d has no key", i)
		}
		p, err := e.Proposal.Proposal()
		if err != nil {
			return fmt.Errorf("cache entry %d (%s): %w", i, e.Key, err)
		}
		items[i] = item{proposal: p, record: e.Proposal, insertedAt: e.InsertedAt}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range entries {
		c.lru.Add(e.Key, items[i])
	}
	return nil
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Stale:     c.stale.Load(),
		Inserts:   c.inserts.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Len(),
		Capacity:  c.capacity,
	}
}
