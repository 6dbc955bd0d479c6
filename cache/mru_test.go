package cache

import (
	"testing"
	"time"
)

func TestMRUSetGet(t *testing.T) {
	m := NewMRU[string, int](4, 0)
	m.Set("a", 1)
	m.Set("b", 2)

	if v, ok := m.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %d, %v", v, ok)
	}
	if _, ok := m.Get("never"); ok {
		t.Fatal("Get(never) hit")
	}
	if m.Count() != 2 {
		t.Fatalf("Count = %d, want 2", m.Count())
	}

	// Set on an existing key refreshes the value without growing the cache.
	m.Set("a", 10)
	if v, _ := m.Get("a"); v != 10 {
		t.Fatalf("Get(a) after refresh = %d, want 10", v)
	}
	if m.Count() != 2 {
		t.Fatalf("Count after refresh = %d, want 2", m.Count())
	}
}

func TestMRUEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMRU[string, int](3, 0)
	m.Set("a", 1)
	m.Set("b", 2)
	m.Set("c", 3)

	// Touch a so b becomes the tail, then push it out.
	m.Get("a")
	m.Set("d", 4)

	if _, ok := m.Get("b"); ok {
		t.Fatal("b not evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := m.Get(k); !ok {
			t.Fatalf("%s evicted", k)
		}
	}
}

func TestMRUExpiresByTTL(t *testing.T) {
	m := NewMRU[string, int](10, 5*time.Millisecond)
	m.Set("a", 1)
	if _, ok := m.Get("a"); !ok {
		t.Fatal("fresh entry missed")
	}
	time.Sleep(10 * time.Millisecond)
	if _, ok := m.Get("a"); ok {
		t.Fatal("expired entry returned")
	}
}

func TestMRUDelete(t *testing.T) {
	m := NewMRU[string, int](10, 0)
	m.Set("a", 1)
	m.Delete("a")
	m.Delete("a")
	if _, ok := m.Get("a"); ok {
		t.Fatal("deleted entry returned")
	}
	if m.Count() != 0 {
		t.Fatalf("Count = %d, want 0", m.Count())
	}
}
