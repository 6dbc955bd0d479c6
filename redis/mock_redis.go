package redis

import (
	"context"
	"sync"
	"time"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/encoding"
)

type mockRedis struct {
	locker sync.Mutex
	lookup map[string][]byte
}

// NewMockClient returns an in-process Cache useful for tests; expirations are ignored.
func NewMockClient() cascade.Cache {
	return &mockRedis{
		lookup: make(map[string][]byte),
	}
}

func (m *mockRedis) Ping(ctx context.Context) error {
	return nil
}

func (m *mockRedis) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.lookup[key] = []byte(value)
	return nil
}

func (m *mockRedis) Get(ctx context.Context, key string) (bool, string, error) {
	m.locker.Lock()
	defer m.locker.Unlock()
	ba, ok := m.lookup[key]
	return ok, string(ba), nil
}

func (m *mockRedis) SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ba, err := encoding.DefaultMarshaler.Marshal(value)
	if err != nil {
		return err
	}
	m.locker.Lock()
	defer m.locker.Unlock()
	m.lookup[key] = ba
	return nil
}

func (m *mockRedis) GetStruct(ctx context.Context, key string, target interface{}) (bool, error) {
	m.locker.Lock()
	ba, ok := m.lookup[key]
	m.locker.Unlock()
	if !ok {
		return false, nil
	}
	if err := encoding.DefaultMarshaler.Unmarshal(ba, target); err != nil {
		return false, err
	}
	return true, nil
}

func (m *mockRedis) Delete(ctx context.Context, keys []string) (bool, error) {
	m.locker.Lock()
	defer m.locker.Unlock()
	found := false
	for _, k := range keys {
		if _, ok := m.lookup[k]; ok {
			found = true
			delete(m.lookup, k)
		}
	}
	return found, nil
}
