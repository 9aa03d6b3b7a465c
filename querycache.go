package josh

import (
	"fmt"

	"github.com/golang/groupcache/lru"
)

// QueryCache memoizes spatial-query results for the lifetime of a single
// step (§4.G): the same (origin, distance, attribute) query issued twice
// within one step returns the cached distribution rather than re-scanning
// the patch grid. It is reset at the start of every step, matching the
// teacher's per-iteration cache reset in run.go's Calculations loop
// (each pass starts the downwind/upwind lookups fresh).
type QueryCache struct {
	cache *lru.Cache
}

// NewQueryCache returns a cache holding at most maxEntries query results.
// maxEntries <= 0 means unbounded, mirroring lru.Cache's own convention.
func NewQueryCache(maxEntries int) *QueryCache {
	return &QueryCache{cache: lru.New(maxEntries)}
}

type queryCacheKey struct {
	origin    GeoKey
	distance  string
	attribute string
}

// Reset clears all cached entries. Call once per step, before that step's
// first spatial query.
func (c *QueryCache) Reset() { c.cache.Clear() }

// distanceKey renders distance into the string component of a cache key.
// It dispatches on Kind via asFloat rather than reading the raw Double
// field directly, so Int- and Decimal-valued distances hash distinctly
// instead of all collapsing to the zero-value key for KindDouble. The kind
// is part of the key, so an Int and a Double distance of the same
// magnitude are cached separately.
func distanceKey(distance Value) string {
	f, ok := distance.asFloat()
	if !ok {
		return fmt.Sprintf("%s:%s", distance.Kind(), distance.Units().String())
	}
	return fmt.Sprintf("%s:%v%s", distance.Kind(), f, distance.Units().String())
}

// Get returns a previously cached result for this exact query, if any.
func (c *QueryCache) Get(origin GeoKey, distance Value, attribute string) (Value, bool) {
	key := queryCacheKey{origin: origin, distance: distanceKey(distance), attribute: attribute}
	v, ok := c.cache.Get(key)
	if !ok {
		return Value{}, false
	}
	return v.(Value), true
}

// Put stores a query result, keyed by the same tuple Get uses.
func (c *QueryCache) Put(origin GeoKey, distance Value, attribute string, result Value) {
	key := queryCacheKey{origin: origin, distance: distanceKey(distance), attribute: attribute}
	c.cache.Add(key, result)
}
