package local

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Config holds LocalCache settings.
type Config struct {
	GCInterval time.Duration
	// Now overrides the clock used for TTLs; nil means time.Now.
	Now func() time.Time
}

type entry struct {
	data     string
	expireAt time.Time // zero: no expiry
}

type zEntry struct {
	member string
	score  float64
}

// LocalCache is an in-process stand-in for Redis. Every operation takes
// the single mutex, so SetNX and CompareAndDelete are atomic.
type LocalCache struct {
	mu     sync.Mutex
	kv     map[string]*entry
	zsets  map[string][]zEntry // sorted by score descending, then member
	now    func() time.Time
	stopGC chan struct{}
	once   sync.Once
}

// NewCache creates a LocalCache and starts the background GC goroutine.
func NewCache(cfg Config) (*LocalCache, error) {
	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	c := &LocalCache{
		kv:     make(map[string]*entry),
		zsets:  make(map[string][]zEntry),
		now:    now,
		stopGC: make(chan struct{}),
	}
	go c.runGC(interval)
	return c, nil
}

// Close stops the background GC goroutine.
func (c *LocalCache) Close() {
	c.once.Do(func() { close(c.stopGC) })
}

func (c *LocalCache) runGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			for k, e := range c.kv {
				if c.expired(e) {
					delete(c.kv, k)
				}
			}
			c.mu.Unlock()
		case <-c.stopGC:
			return
		}
	}
}

func (c *LocalCache) expired(e *entry) bool {
	return !e.expireAt.IsZero() && !c.now().Before(e.expireAt)
}

// live returns the unexpired entry for key. Callers hold c.mu.
func (c *LocalCache) live(key string) (*entry, bool) {
	e, ok := c.kv[key]
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		delete(c.kv, key)
		return nil, false
	}
	return e, true
}

func (c *LocalCache) newEntry(value string, ttl time.Duration) *entry {
	e := &entry{data: value}
	if ttl > 0 {
		e.expireAt = c.now().Add(ttl)
	}
	return e
}

// ---- KV ----

func (c *LocalCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok {
		return "", ErrNotFound
	}
	return e.data, nil
}

func (c *LocalCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	c.kv[key] = c.newEntry(value, ttl)
	c.mu.Unlock()
	return nil
}

// Del removes keys of any type.
func (c *LocalCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.kv, k)
		delete(c.zsets, k)
	}
	return nil
}

func (c *LocalCache) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live(key); ok {
		return false, nil
	}
	c.kv[key] = c.newEntry(value, ttl)
	return true, nil
}

// CompareAndDelete deletes key only while it still holds value.
func (c *LocalCache) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.live(key)
	if !ok || e.data != value {
		return false, nil
	}
	delete(c.kv, key)
	return true, nil
}

// ---- ZSet ----

func (c *LocalCache) ZAdd(_ context.Context, key string, score float64, member string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	z := slices.DeleteFunc(c.zsets[key], func(e zEntry) bool { return e.member == member })
	z = append(z, zEntry{member: member, score: score})
	slices.SortFunc(z, func(a, b zEntry) int {
		if n := cmp.Compare(b.score, a.score); n != 0 {
			return n
		}
		return cmp.Compare(b.member, a.member)
	})
	c.zsets[key] = z
	return nil
}

// ZRevRange returns members from highest to lowest score. A negative stop
// counts from the end, as in Redis.
func (c *LocalCache) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z := c.zsets[key]
	n := int64(len(z))
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if start >= n || stop < start {
		return nil, nil
	}
	if stop >= n {
		stop = n - 1
	}
	out := make([]string, 0, stop-start+1)
	for _, e := range z[start : stop+1] {
		out = append(out, e.member)
	}
	return out, nil
}

func (c *LocalCache) ZScore(_ context.Context, key, member string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.zsets[key] {
		if e.member == member {
			return e.score, nil
		}
	}
	return 0, ErrNotFound
}
