package cache

import (
	"sync"
	"testing"
	"time"
)

// newTestCache returns a cache driven by a clock the test advances.
func newTestCache(ttl time.Duration, max int) (*TTLCache[string, int], func(time.Duration)) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New[string, int](ttl, max)
	c.now = func() time.Time { return now }
	return c, func(d time.Duration) { now = now.Add(d) }
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	c.Set("key1", 42)

	value, ok := c.Get("key1")
	if !ok || value != 42 {
		t.Fatalf("Get(key1) = %d, %v; want 42, true", value, ok)
	}
	if _, ok := c.Get("nonexistent"); ok {
		t.Error("Get returned ok=true for a missing key")
	}
}

func TestGetExpired(t *testing.T) {
	c, advance := newTestCache(time.Minute, 0)
	c.Set("a", 1)
	advance(30 * time.Second)
	c.Set("b", 2)
	advance(30 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Error("entry a should have expired")
	}
	if v, ok := c.Get("b"); !ok || v != 2 {
		t.Error("entry b expired with the one set before it")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, expired entry not dropped on Get", c.Len())
	}
}

func TestSetRefreshesTTL(t *testing.T) {
	c, advance := newTestCache(time.Minute, 0)
	c.Set("a", 1)
	advance(50 * time.Second)
	c.Set("a", 2)
	advance(50 * time.Second)
	if v, ok := c.Get("a"); !ok || v != 2 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
}

func TestEviction(t *testing.T) {
	tests := []struct {
		name    string
		expireA bool
		keep    []string
		gone    []string
	}{
		{"oldest evicted", false, []string{"b", "c"}, []string{"a"}},
		{"expired evicted first", true, []string{"b", "c"}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, advance := newTestCache(time.Minute, 2)
			c.Set("a", 1)
			advance(time.Second)
			c.Set("b", 2)
			if tt.expireA {
				advance(59 * time.Second)
			}
			c.Set("c", 3)

			if c.Len() != 2 {
				t.Errorf("Len() = %d, want 2", c.Len())
			}
			for _, k := range tt.keep {
				if _, ok := c.Get(k); !ok {
					t.Errorf("%s evicted", k)
				}
			}
			for _, k := range tt.gone {
				if _, ok := c.Get(k); ok {
					t.Errorf("%s kept", k)
				}
			}
		})
	}
}

func TestDeleteAndInvalidate(t *testing.T) {
	c, _ := newTestCache(time.Minute, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted key still present")
	}
	c.Invalidate()
	if c.Len() != 0 {
		t.Errorf("Len() after Invalidate = %d", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New[int, int](time.Minute, 16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set(n*100+j, j)
				c.Get(n*100 + j)
			}
		}(i)
	}
	wg.Wait()
	if c.Len() > 16 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
