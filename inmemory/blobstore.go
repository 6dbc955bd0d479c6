package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sharedcode/cascade"
)

type blobStore struct {
	locker sync.Mutex
	blobs  map[cascade.Key][]byte
}

// NewBlobStore instantiates an in-memory blob store.
func NewBlobStore() cascade.BlobStore {
	return &blobStore{blobs: make(map[cascade.Key][]byte)}
}

func (b *blobStore) Has(ctx context.Context, key cascade.Key) (bool, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	_, ok := b.blobs[key]
	return ok, nil
}

func (b *blobStore) Get(ctx context.Context, key cascade.Key) ([]byte, error) {
	b.locker.Lock()
	defer b.locker.Unlock()
	ba, ok := b.blobs[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(ba))
	copy(out, ba)
	return out, nil
}

func (b *blobStore) Put(ctx context.Context, key cascade.Key, ba []byte) error {
	if actual := cascade.NewKey(ba); actual != key {
		return cascade.Error{
			Code:     cascade.HashMismatch,
			Err:      fmt.Errorf("expected key %s, actual %s", key, actual),
			UserData: actual,
		}
	}
	b.locker.Lock()
	defer b.locker.Unlock()
	stored := make([]byte, len(ba))
	copy(stored, ba)
	b.blobs[key] = stored
	return nil
}

func (b *blobStore) Erase(ctx context.Context, key cascade.Key) error {
	b.locker.Lock()
	defer b.locker.Unlock()
	delete(b.blobs, key)
	return nil
}
