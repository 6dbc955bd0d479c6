package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sharedcode/cascade"
)

type ownershipLedger struct {
	locker  sync.Mutex
	entries map[string]map[cascade.Key]cascade.OwnershipEntry
}

// NewOwnershipLedger instantiates an in-memory ownership ledger.
func NewOwnershipLedger() cascade.OwnershipLedger {
	return &ownershipLedger{entries: make(map[string]map[cascade.Key]cascade.OwnershipEntry)}
}

type ownershipCursor struct {
	CreatedAt time.Time   `json:"t"`
	Key       cascade.Key `json:"k"`
}

func (o *ownershipLedger) Add(ctx context.Context, entry cascade.OwnershipEntry) error {
	o.locker.Lock()
	defer o.locker.Unlock()
	realm := o.entries[entry.Realm]
	if realm == nil {
		realm = make(map[cascade.Key]cascade.OwnershipEntry)
		o.entries[entry.Realm] = realm
	}
	if _, ok := realm[entry.Key]; ok {
		return nil
	}
	realm[entry.Key] = entry
	return nil
}

func (o *ownershipLedger) Has(ctx context.Context, realm string, key cascade.Key) (bool, error) {
	o.locker.Lock()
	defer o.locker.Unlock()
	_, ok := o.entries[realm][key]
	return ok, nil
}

func (o *ownershipLedger) Get(ctx context.Context, realm string, key cascade.Key) (*cascade.OwnershipEntry, error) {
	o.locker.Lock()
	defer o.locker.Unlock()
	e, ok := o.entries[realm][key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (o *ownershipLedger) Check(ctx context.Context, realm string, keys []cascade.Key) (present []cascade.Key, missing []cascade.Key, err error) {
	o.locker.Lock()
	defer o.locker.Unlock()
	for _, k := range keys {
		if _, ok := o.entries[realm][k]; ok {
			present = append(present, k)
		} else {
			missing = append(missing, k)
		}
	}
	return present, missing, nil
}

func (o *ownershipLedger) List(ctx context.Context, realm string, limit int, cursor string) ([]cascade.OwnershipEntry, string, error) {
	o.locker.Lock()
	defer o.locker.Unlock()
	all := make([]cascade.OwnershipEntry, 0, len(o.entries[realm]))
	for _, e := range o.entries[realm] {
		all = append(all, e)
	}
	// Newest first, key descending as the tie breaker for a stable order.
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].Key > all[j].Key
	})
	start := 0
	if cursor != "" {
		var c ownershipCursor
		if err := decodeCursor(cursor, &c); err != nil {
			return nil, "", err
		}
		for i, e := range all {
			if e.CreatedAt.Before(c.CreatedAt) || (e.CreatedAt.Equal(c.CreatedAt) && e.Key < c.Key) {
				start = i
				break
			}
			start = len(all)
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
		next = encodeCursor(ownershipCursor{CreatedAt: last.CreatedAt, Key: last.Key})
	}
	return page, next, nil
}

func (o *ownershipLedger) Remove(ctx context.Context, realm string, key cascade.Key) error {
	o.locker.Lock()
	defer o.locker.Unlock()
	delete(o.entries[realm], key)
	return nil
}
