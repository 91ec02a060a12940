package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)}
}

func TestLRU_GetSet(t *testing.T) {
	c := NewLRU[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)

	if got, ok := c.Get("a"); !ok || got != 1 {
		t.Errorf("Get(a) = %d, %v, want 1, true", got, ok)
	}
	c.Set("b", 3)
	if got, _ := c.Get("b"); got != 3 {
		t.Errorf("Get(b) after overwrite = %d, want 3", got)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // b is now the oldest
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("Get(b) found an entry that should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("Get(%s) missing, want present", k)
		}
	}
}

func TestLRU_Expiry(t *testing.T) {
	clock := newClock()
	c := NewLRU[string, string](10, time.Minute, WithClock(clock.Now))
	c.Set("old", "x")
	clock.Advance(45 * time.Second)
	c.Set("new", "y")

	clock.Advance(30 * time.Second)
	if _, ok := c.Get("old"); ok {
		t.Error("Get(old) returned an expired entry")
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("Get(new) missing before its TTL")
	}

	clock.Advance(time.Minute)
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestLRU_DeleteFunc(t *testing.T) {
	c := NewLRU[string, int](10, 0)
	c.Set("u1/2024-03-14", 1)
	c.Set("u1/2024-03-15", 2)
	c.Set("u2/2024-03-15", 3)

	n := c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "u1/") })
	if n != 2 {
		t.Errorf("DeleteFunc() = %d, want 2", n)
	}
	if _, ok := c.Get("u2/2024-03-15"); !ok {
		t.Error("entry of another user was removed")
	}
}

func TestLRU_MinimumCapacity(t *testing.T) {
	c := NewLRU[int, int](0, 0)
	c.Set(1, 1)
	c.Set(2, 2)
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestManager_CleanAll(t *testing.T) {
	clock := newClock()
	a := NewLRU[string, int](4, time.Second, WithClock(clock.Now))
	b := NewLRU[int, int](4, time.Second, WithClock(clock.Now))
	a.Set("x", 1)
	b.Set(1, 1)
	b.Set(2, 2)

	m := NewManager()
	m.Register(a)
	m.Register(b)

	clock.Advance(2 * time.Second)
	if n := m.CleanAll(); n != 3 {
		t.Errorf("CleanAll() = %d, want 3", n)
	}
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager()
	m.Register(NewLRU[string, int](1, time.Millisecond))

	m.StartCleanup(context.Background(), 5*time.Millisecond)
	m.StartCleanup(context.Background(), 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	m.Stop()
	m.Stop()
}
