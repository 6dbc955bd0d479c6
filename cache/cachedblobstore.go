package cache

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/sharedcode/cascade"
)

// ExistenceCacheMinSize is the lower bound on the positive-existence LRU.
const ExistenceCacheMinSize = 10000

type cachedBlobStore struct {
	backend          cascade.BlobStore
	l2               cascade.Cache
	existence        *MRU[cascade.Key, struct{}]
	cacheExpiry      time.Duration
	maxCacheableSize int
}

// NewCachedBlobStore layers two caches over a blob store backend: a per-process
// positive-existence LRU (Has) and an L2 cache of small blob bytes (Get).
// Negative answers are never cached; blobs are immutable so positive entries
// cannot go stale, only the GC's Erase invalidates them. existenceSize below
// the minimum is raised to it; cacheExpiry <= 0 defaults to 2 hours;
// maxCacheableSize <= 0 defaults to 1 MiB.
func NewCachedBlobStore(backend cascade.BlobStore, l2 cascade.Cache, existenceSize int, cacheExpiry time.Duration, maxCacheableSize int) cascade.BlobStore {
	if existenceSize < ExistenceCacheMinSize {
		existenceSize = ExistenceCacheMinSize
	}
	if cacheExpiry <= 0 {
		cacheExpiry = 2 * time.Hour
	}
	if maxCacheableSize <= 0 {
		maxCacheableSize = 1024 * 1024
	}
	return &cachedBlobStore{
		backend:          backend,
		l2:               l2,
		existence:        NewMRU[cascade.Key, struct{}](existenceSize, 0),
		cacheExpiry:      cacheExpiry,
		maxCacheableSize: maxCacheableSize,
	}
}

func (b *cachedBlobStore) Has(ctx context.Context, key cascade.Key) (bool, error) {
	if _, ok := b.existence.Get(key); ok {
		return true, nil
	}
	ok, err := b.backend.Has(ctx, key)
	if err != nil {
		return false, err
	}
	if ok {
		b.existence.Set(key, struct{}{})
	}
	return ok, nil
}

func (b *cachedBlobStore) Get(ctx context.Context, key cascade.Key) ([]byte, error) {
	if b.l2 != nil {
		found, s, err := b.l2.Get(ctx, b.formatKey(key))
		if err != nil {
			// Tolerate cache failure; fall through to the backend.
			log.Warn(fmt.Sprintf("l2 get for key %s failed, details: %v", key, err))
		} else if found {
			b.existence.Set(key, struct{}{})
			return []byte(s), nil
		}
	}
	ba, err := b.backend.Get(ctx, key)
	if err != nil || ba == nil {
		return ba, err
	}
	b.existence.Set(key, struct{}{})
	if b.l2 != nil && len(ba) <= b.maxCacheableSize {
		if err := b.l2.Set(ctx, b.formatKey(key), string(ba), b.cacheExpiry); err != nil {
			log.Warn(fmt.Sprintf("l2 set for key %s failed, details: %v", key, err))
		}
	}
	return ba, nil
}

func (b *cachedBlobStore) Put(ctx context.Context, key cascade.Key, ba []byte) error {
	if err := b.backend.Put(ctx, key, ba); err != nil {
		return err
	}
	b.existence.Set(key, struct{}{})
	if b.l2 != nil && len(ba) <= b.maxCacheableSize {
		if err := b.l2.Set(ctx, b.formatKey(key), string(ba), b.cacheExpiry); err != nil {
			log.Warn(fmt.Sprintf("l2 set for key %s failed, details: %v", key, err))
		}
	}
	return nil
}

func (b *cachedBlobStore) Erase(ctx context.Context, key cascade.Key) error {
	b.existence.Delete(key)
	if b.l2 != nil {
		if _, err := b.l2.Delete(ctx, []string{b.formatKey(key)}); err != nil {
			log.Warn(fmt.Sprintf("l2 delete for key %s failed, details: %v", key, err))
		}
	}
	return b.backend.Erase(ctx, key)
}

func (b *cachedBlobStore) formatKey(key cascade.Key) string {
	return "blob:" + string(key)
}
