package rbac

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

type resolutionEntry struct {
	roles    []*Role
	cachedAt time.Time
}

// resolutionCache memoizes effective-role lookups keyed by
// "principalID:resource". Entries older than ttl are ignored on read and
// overwritten on the next fill. A non-positive ttl disables the cache.
type resolutionCache struct {
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]*resolutionEntry
	hits    atomic.Uint64
	misses  atomic.Uint64
}

func newResolutionCache(ttl time.Duration) *resolutionCache {
	return &resolutionCache{ttl: ttl, entries: make(map[string]*resolutionEntry)}
}

func (c *resolutionCache) get(key string) ([]*Role, bool) {
	c.mu.RLock()
	ttl := c.ttl
	ent, ok := c.entries[key]
	c.mu.RUnlock()
	if ttl <= 0 || !ok || time.Since(ent.cachedAt) >= ttl {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return ent.roles, true
}

func (c *resolutionCache) set(key string, roles []*Role) {
	c.mu.Lock()
	if c.ttl > 0 {
		c.entries[key] = &resolutionEntry{roles: roles, cachedAt: time.Now()}
	}
	c.mu.Unlock()
}

// setTTL changes the cache lifetime and drops existing entries so stale
// data cannot outlive the new bound.
func (c *resolutionCache) setTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.entries = make(map[string]*resolutionEntry)
	c.mu.Unlock()
}

// invalidatePrefix drops every entry whose key starts with prefix and
// returns how many were removed. Assign and revoke pass "principalID:" so
// all cached resolutions for that principal go at once.
func (c *resolutionCache) invalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *resolutionCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]*resolutionEntry)
	c.mu.Unlock()
}

func (c *resolutionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheStats reports resolution cache activity since engine start.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// CacheStats returns a snapshot of the resolution cache counters.
func (e *Engine) CacheStats() CacheStats {
	return CacheStats{
		Entries: e.resolution.size(),
		Hits:    e.resolution.hits.Load(),
		Misses:  e.resolution.misses.Load(),
	}
}

// decisionCache is an optional ristretto-backed cache of whole check
// results. Invalidation is generational: every key embeds a global and a
// per-principal generation counter, and mutations bump the matching
// counter, so stale entries become unreachable and age out via TTL.
type decisionCache struct {
	cache *ristretto.Cache
	ttl   time.Duration

	mu        sync.Mutex
	globalGen uint64
	gens      map[string]uint64
}

func newDecisionCache(numCounters, maxCost int64, ttl time.Duration) (*decisionCache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &decisionCache{cache: rc, ttl: ttl, gens: make(map[string]uint64)}, nil
}

func (d *decisionCache) key(principalID, resource, action string) string {
	d.mu.Lock()
	global, principal := d.globalGen, d.gens[principalID]
	d.mu.Unlock()
	return strconv.FormatUint(global, 10) + "|" + strconv.FormatUint(principal, 10) +
		"|" + principalID + "|" + resource + "|" + action
}

func (d *decisionCache) get(key string) (*AccessCheckResult, bool) {
	v, ok := d.cache.Get(key)
	if !ok {
		return nil, false
	}
	res, ok := v.(*AccessCheckResult)
	return res, ok
}

// set stores res under a key minted at lookup time. A key minted before an
// invalidation carries the old generation, so a result resolved before the
// bump lands where no current lookup can reach it.
func (d *decisionCache) set(key string, res *AccessCheckResult) {
	d.cache.SetWithTTL(key, res, 1, d.ttl)
}

func (d *decisionCache) invalidatePrincipal(principalID string) {
	d.mu.Lock()
	d.gens[principalID]++
	d.mu.Unlock()
}

func (d *decisionCache) invalidateAll() {
	d.mu.Lock()
	d.globalGen++
	d.gens = make(map[string]uint64)
	d.mu.Unlock()
}

// wait blocks until buffered writes are visible. Only tests need it.
func (d *decisionCache) wait() { d.cache.Wait() }

func (d *decisionCache) close() { d.cache.Close() }

// invalidatePrincipalLocked drops every cached resolution and decision for
// one principal. Caller holds e.mu.
func (e *Engine) invalidatePrincipalLocked(principalID string) {
	removed := e.resolution.invalidatePrefix(principalID + ":")
	if dc := e.decisions.Load(); dc != nil {
		dc.invalidatePrincipal(principalID)
	}
	e.logger.Debug("caches invalidated for principal",
		"principal_id", principalID,
		"entries_removed", removed)
}

// invalidateAllLocked clears both caches. Role mutations can change any
// principal's effective set through inheritance, so nothing narrower is
// safe. Caller holds e.mu.
func (e *Engine) invalidateAllLocked() {
	e.resolution.clear()
	if dc := e.decisions.Load(); dc != nil {
		dc.invalidateAll()
	}
}

// ConfigureDecisionCache enables (or resizes) the ristretto decision cache
// at runtime. numCounters sizes the admission sketch, maxCost bounds the
// number of cached results. Pass the TTL the engine was built with by
// calling this before serving traffic, or any time after: checks load the
// cache pointer atomically.
func (e *Engine) ConfigureDecisionCache(numCounters, maxCost int64) error {
	dc, err := newDecisionCache(numCounters, maxCost, e.cacheTTL)
	if err != nil {
		return err
	}
	if old := e.decisions.Swap(dc); old != nil {
		old.close()
	}
	e.logger.Info("decision cache configured", "num_counters", int(numCounters), "max_cost", int(maxCost))
	return nil
}
