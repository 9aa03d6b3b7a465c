package josh

import "testing"

func TestQueryCacheHitAndMiss(t *testing.T) {
	c := NewQueryCache(10)
	origin := GeoKey{TypeName: "Patch"}
	dist := DoubleValue(100, EmptyUnits)

	if _, ok := c.Get(origin, dist, "temperature"); ok {
		t.Errorf("expected a miss before anything is cached")
	}
	c.Put(origin, dist, "temperature", DoubleValue(42, EmptyUnits))
	v, ok := c.Get(origin, dist, "temperature")
	if !ok {
		t.Fatalf("expected a hit after Put")
	}
	if v.Double() != 42 {
		t.Errorf("expected 42, got %v", v.Double())
	}
}

func TestQueryCacheDistinguishesAttribute(t *testing.T) {
	c := NewQueryCache(10)
	origin := GeoKey{TypeName: "Patch"}
	dist := DoubleValue(100, EmptyUnits)
	c.Put(origin, dist, "temperature", DoubleValue(42, EmptyUnits))
	if _, ok := c.Get(origin, dist, "humidity"); ok {
		t.Errorf("expected a miss for a different attribute key")
	}
}

func TestQueryCacheDistinguishesDistanceKind(t *testing.T) {
	// 100 as an Int and 100 as a Double must not collide to the same
	// cache key: distanceKey includes the value's kind alongside its
	// magnitude and units, so each kind gets its own entry.
	c := NewQueryCache(10)
	origin := GeoKey{TypeName: "Patch"}

	c.Put(origin, DoubleValue(100, EmptyUnits), "temperature", DoubleValue(42, EmptyUnits))
	if _, ok := c.Get(origin, IntValue(100, EmptyUnits), "temperature"); ok {
		t.Errorf("expected an Int-valued distance to miss a Double-valued cache entry")
	}

	c.Put(origin, IntValue(100, EmptyUnits), "temperature", DoubleValue(7, EmptyUnits))
	v, ok := c.Get(origin, IntValue(100, EmptyUnits), "temperature")
	if !ok {
		t.Fatalf("expected a hit for the Int-valued distance after Put")
	}
	if v.Double() != 7 {
		t.Errorf("expected 7, got %v", v.Double())
	}
	if v2, ok := c.Get(origin, DoubleValue(100, EmptyUnits), "temperature"); !ok || v2.Double() != 42 {
		t.Errorf("expected the original Double-valued entry to still read back 42, got %v ok=%v", v2, ok)
	}
}

func TestQueryCacheResetClearsEntries(t *testing.T) {
	c := NewQueryCache(10)
	origin := GeoKey{TypeName: "Patch"}
	dist := DoubleValue(100, EmptyUnits)
	c.Put(origin, dist, "temperature", DoubleValue(42, EmptyUnits))
	c.Reset()
	if _, ok := c.Get(origin, dist, "temperature"); ok {
		t.Errorf("expected Reset to clear all cached entries")
	}
}
