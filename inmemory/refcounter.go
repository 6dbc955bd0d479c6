package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sharedcode/cascade"
)

type refKey struct {
	realm string
	key   cascade.Key
}

type refCounter struct {
	locker  sync.Mutex
	entries map[refKey]*cascade.RefCountEntry
}

// NewRefCounter instantiates an in-memory reference counter. The single mutex
// makes every operation linearisable.
func NewRefCounter() cascade.RefCounter {
	return &refCounter{entries: make(map[refKey]*cascade.RefCountEntry)}
}

type pendingCursor struct {
	FirstSeen time.Time   `json:"t"`
	Realm     string      `json:"r"`
	Key       cascade.Key `json:"k"`
}

func (r *refCounter) Increment(ctx context.Context, realm string, key cascade.Key, physicalSize, logicalSize int64) (cascade.IncrementResult, error) {
	r.locker.Lock()
	defer r.locker.Unlock()
	rk := refKey{realm: realm, key: key}
	e, ok := r.entries[rk]
	if !ok {
		r.entries[rk] = &cascade.RefCountEntry{
			Realm:        realm,
			Key:          key,
			Count:        1,
			PhysicalSize: physicalSize,
			LogicalSize:  logicalSize,
			GCState:      cascade.GCActive,
			FirstSeenAt:  cascade.Now(),
		}
		return cascade.IncrementResult{Count: 1, WasZeroBefore: true}, nil
	}
	wasZero := e.Count == 0
	e.Count++
	e.GCState = cascade.GCActive
	return cascade.IncrementResult{Count: e.Count, WasZeroBefore: wasZero}, nil
}

func (r *refCounter) Decrement(ctx context.Context, realm string, key cascade.Key) (cascade.DecrementResult, error) {
	r.locker.Lock()
	defer r.locker.Unlock()
	e, ok := r.entries[refKey{realm: realm, key: key}]
	if !ok || e.Count == 0 {
		return cascade.DecrementResult{Count: 0, BecameZero: false}, nil
	}
	e.Count--
	if e.Count == 0 {
		e.GCState = cascade.GCPending
		return cascade.DecrementResult{Count: 0, BecameZero: true}, nil
	}
	return cascade.DecrementResult{Count: e.Count, BecameZero: false}, nil
}

func (r *refCounter) Get(ctx context.Context, realm string, key cascade.Key) (*cascade.RefCountEntry, error) {
	r.locker.Lock()
	defer r.locker.Unlock()
	e, ok := r.entries[refKey{realm: realm, key: key}]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (r *refCounter) ListPending(ctx context.Context, before time.Time, limit int, cursor string) ([]cascade.RefCountEntry, string, error) {
	r.locker.Lock()
	defer r.locker.Unlock()
	var all []cascade.RefCountEntry
	for _, e := range r.entries {
		if e.GCState == cascade.GCPending && e.FirstSeenAt.Before(before) {
			all = append(all, *e)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].FirstSeenAt.Equal(all[j].FirstSeenAt) {
			return all[i].FirstSeenAt.Before(all[j].FirstSeenAt)
		}
		if all[i].Realm != all[j].Realm {
			return all[i].Realm < all[j].Realm
		}
		return all[i].Key < all[j].Key
	})
	start := 0
	if cursor != "" {
		var c pendingCursor
		if err := decodeCursor(cursor, &c); err != nil {
			return nil, "", err
		}
		start = len(all)
		for i, e := range all {
			if e.FirstSeenAt.After(c.FirstSeen) ||
				(e.FirstSeenAt.Equal(c.FirstSeen) && (e.Realm > c.Realm || (e.Realm == c.Realm && e.Key > c.Key))) {
				start = i
				break
			}
		}
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]
	next := ""
	if end < len(all) && len(page) > 0 {
		last := page[len(page)-1]
		next = encodeCursor(pendingCursor{FirstSeen: last.FirstSeenAt, Realm: last.Realm, Key: last.Key})
	}
	return page, next, nil
}

func (r *refCounter) CountGlobal(ctx context.Context, key cascade.Key) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()
	n := 0
	for rk := range r.entries {
		if rk.key == key {
			n++
		}
	}
	return n, nil
}

func (r *refCounter) Delete(ctx context.Context, realm string, key cascade.Key) error {
	r.locker.Lock()
	defer r.locker.Unlock()
	delete(r.entries, refKey{realm: realm, key: key})
	return nil
}
