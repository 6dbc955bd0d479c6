package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/inmemory"
	"github.com/sharedcode/cascade/redis"
)

type countingStore struct {
	cascade.BlobStore
	gets  int
	hases int
}

func (c *countingStore) Get(ctx context.Context, key cascade.Key) ([]byte, error) {
	c.gets++
	return c.BlobStore.Get(ctx, key)
}

func (c *countingStore) Has(ctx context.Context, key cascade.Key) (bool, error) {
	c.hases++
	return c.BlobStore.Has(ctx, key)
}

// failingCache errors on every call; the store must shrug it off.
type failingCache struct{}

func (failingCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	return errors.New("l2 down")
}

func (failingCache) Get(ctx context.Context, key string) (bool, string, error) {
	return false, "", errors.New("l2 down")
}

func (failingCache) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return errors.New("l2 down")
}

func (failingCache) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	return false, errors.New("l2 down")
}

func (failingCache) Delete(ctx context.Context, keys []string) (bool, error) {
	return false, errors.New("l2 down")
}

func (failingCache) Ping(ctx context.Context) error { return errors.New("l2 down") }

func l2Holds(t *testing.T, l2 cascade.Cache, key cascade.Key) bool {
	t.Helper()
	found, _, err := l2.Get(context.Background(), "blob:"+string(key))
	if err != nil {
		t.Fatalf("l2 Get: %v", err)
	}
	return found
}

func TestCachedGetServedFromL2(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{BlobStore: inmemory.NewBlobStore()}
	l2 := redis.NewMockClient()
	store := NewCachedBlobStore(backend, l2, 0, time.Hour, 0)

	ba := []byte("small blob")
	key := cascade.NewKey(ba)
	if err := backend.Put(ctx, key, ba); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, key)
	if err != nil || string(got) != string(ba) {
		t.Fatalf("first Get = %q, %v", got, err)
	}
	if backend.gets != 1 {
		t.Fatalf("backend gets = %d, want 1", backend.gets)
	}

	// The first read filled L2; the second never reaches the backend.
	got, err = store.Get(ctx, key)
	if err != nil || string(got) != string(ba) {
		t.Fatalf("second Get = %q, %v", got, err)
	}
	if backend.gets != 1 {
		t.Fatalf("backend gets after cached read = %d, want 1", backend.gets)
	}
}

func TestCachedHasUsesExistenceCache(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{BlobStore: inmemory.NewBlobStore()}
	store := NewCachedBlobStore(backend, nil, 0, time.Hour, 0)

	ba := []byte("present")
	key := cascade.NewKey(ba)
	if err := backend.Put(ctx, key, ba); err != nil {
		t.Fatalf("Put: %v", err)
	}

	for i := 0; i < 3; i++ {
		ok, err := store.Has(ctx, key)
		if err != nil || !ok {
			t.Fatalf("Has #%d = %v, %v", i, ok, err)
		}
	}
	if backend.hases != 1 {
		t.Fatalf("backend hases = %d, want 1", backend.hases)
	}

	// Negative answers are never cached: every miss goes to the backend.
	absent := cascade.NewKey([]byte("absent"))
	for i := 0; i < 2; i++ {
		if ok, _ := store.Has(ctx, absent); ok {
			t.Fatal("Has(absent) = true")
		}
	}
	if backend.hases != 3 {
		t.Fatalf("backend hases after misses = %d, want 3", backend.hases)
	}
}

func TestCachedPutPrimesCaches(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{BlobStore: inmemory.NewBlobStore()}
	l2 := redis.NewMockClient()
	store := NewCachedBlobStore(backend, l2, 0, time.Hour, 0)

	ba := []byte("written through")
	key := cascade.NewKey(ba)
	if err := store.Put(ctx, key, ba); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if got, err := store.Get(ctx, key); err != nil || string(got) != string(ba) {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if ok, err := store.Has(ctx, key); err != nil || !ok {
		t.Fatalf("Has = %v, %v", ok, err)
	}
	if backend.gets != 0 || backend.hases != 0 {
		t.Fatalf("backend touched: gets=%d hases=%d", backend.gets, backend.hases)
	}
}

func TestCachedEraseInvalidates(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{BlobStore: inmemory.NewBlobStore()}
	l2 := redis.NewMockClient()
	store := NewCachedBlobStore(backend, l2, 0, time.Hour, 0)

	ba := []byte("short lived")
	key := cascade.NewKey(ba)
	if err := store.Put(ctx, key, ba); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Erase(ctx, key); err != nil {
		t.Fatalf("Erase: %v", err)
	}

	if got, err := store.Get(ctx, key); err != nil || got != nil {
		t.Fatalf("Get after erase = %q, %v", got, err)
	}
	if ok, _ := store.Has(ctx, key); ok {
		t.Fatal("Has after erase = true")
	}
	if l2Holds(t, l2, key) {
		t.Fatal("l2 still holds the erased blob")
	}
}

func TestCachedSkipsOversizedBlobs(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{BlobStore: inmemory.NewBlobStore()}
	l2 := redis.NewMockClient()
	store := NewCachedBlobStore(backend, l2, 0, time.Hour, 8)

	ba := []byte("this blob is over the cacheable size")
	key := cascade.NewKey(ba)
	if err := store.Put(ctx, key, ba); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if l2Holds(t, l2, key) {
		t.Fatal("oversized blob landed in l2")
	}

	// Reads keep going to the backend, but existence is still cached.
	store.Get(ctx, key)
	store.Get(ctx, key)
	if backend.gets != 2 {
		t.Fatalf("backend gets = %d, want 2", backend.gets)
	}
	if ok, _ := store.Has(ctx, key); !ok {
		t.Fatal("Has = false")
	}
	if backend.hases != 0 {
		t.Fatalf("backend hases = %d, want 0", backend.hases)
	}
}

func TestCachedToleratesL2Failure(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{BlobStore: inmemory.NewBlobStore()}
	store := NewCachedBlobStore(backend, failingCache{}, 0, time.Hour, 0)

	ba := []byte("resilient")
	key := cascade.NewKey(ba)
	if err := store.Put(ctx, key, ba); err != nil {
		t.Fatalf("Put with failing l2: %v", err)
	}
	got, err := store.Get(ctx, key)
	if err != nil || string(got) != string(ba) {
		t.Fatalf("Get with failing l2 = %q, %v", got, err)
	}
	if err := store.Erase(ctx, key); err != nil {
		t.Fatalf("Erase with failing l2: %v", err)
	}
}
