package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sharedcode/cascade"
)

type depotKey struct {
	realm string
	id    string
}

type depotStore struct {
	locker  sync.Mutex
	depots  map[depotKey]*cascade.Depot
	history map[depotKey][]cascade.DepotVersion
}

// NewDepotStore instantiates an in-memory depot store.
func NewDepotStore() cascade.DepotStore {
	return &depotStore{
		depots:  make(map[depotKey]*cascade.Depot),
		history: make(map[depotKey][]cascade.DepotVersion),
	}
}

func (d *depotStore) Create(ctx context.Context, depot cascade.Depot) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	for dk, existing := range d.depots {
		if dk.realm == depot.Realm && existing.Name == depot.Name {
			return cascade.Error{Code: cascade.Conflict, Err: fmt.Errorf("depot name %q already exists in realm %s", depot.Name, depot.Realm)}
		}
	}
	dk := depotKey{realm: depot.Realm, id: depot.ID}
	stored := depot
	d.depots[dk] = &stored
	d.history[dk] = append(d.history[dk], cascade.DepotVersion{
		Version:   depot.Version,
		Root:      depot.Root,
		Message:   "created",
		CreatedAt: depot.CreatedAt,
	})
	return nil
}

func (d *depotStore) Get(ctx context.Context, realm, id string) (*cascade.Depot, error) {
	d.locker.Lock()
	defer d.locker.Unlock()
	depot, ok := d.depots[depotKey{realm: realm, id: id}]
	if !ok {
		return nil, nil
	}
	copied := *depot
	return &copied, nil
}

func (d *depotStore) GetByName(ctx context.Context, realm, name string) (*cascade.Depot, error) {
	d.locker.Lock()
	defer d.locker.Unlock()
	for dk, depot := range d.depots {
		if dk.realm == realm && depot.Name == name {
			copied := *depot
			return &copied, nil
		}
	}
	return nil, nil
}

func (d *depotStore) List(ctx context.Context, realm string) ([]cascade.Depot, error) {
	d.locker.Lock()
	defer d.locker.Unlock()
	var depots []cascade.Depot
	for dk, depot := range d.depots {
		if dk.realm == realm {
			depots = append(depots, *depot)
		}
	}
	sort.Slice(depots, func(i, j int) bool { return depots[i].Name < depots[j].Name })
	return depots, nil
}

func (d *depotStore) SwapRoot(ctx context.Context, realm, id string, expectVersion int64, newRoot cascade.Key, message string) (*cascade.Depot, error) {
	d.locker.Lock()
	defer d.locker.Unlock()
	dk := depotKey{realm: realm, id: id}
	depot, ok := d.depots[dk]
	if !ok {
		return nil, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no depot %s in realm %s", id, realm)}
	}
	if depot.Version != expectVersion {
		return nil, cascade.Error{Code: cascade.Conflict, Err: fmt.Errorf("depot %s is at version %d, expected %d", id, depot.Version, expectVersion), UserData: depot.Version}
	}
	depot.Root = newRoot
	depot.Version = expectVersion + 1
	depot.UpdatedAt = cascade.Now()
	d.history[dk] = append(d.history[dk], cascade.DepotVersion{
		Version:   depot.Version,
		Root:      newRoot,
		Message:   message,
		CreatedAt: depot.UpdatedAt,
	})
	copied := *depot
	return &copied, nil
}

func (d *depotStore) History(ctx context.Context, realm, id string) ([]cascade.DepotVersion, error) {
	d.locker.Lock()
	defer d.locker.Unlock()
	h := d.history[depotKey{realm: realm, id: id}]
	out := make([]cascade.DepotVersion, len(h))
	copy(out, h)
	return out, nil
}

func (d *depotStore) GetVersion(ctx context.Context, realm, id string, version int64) (*cascade.DepotVersion, error) {
	d.locker.Lock()
	defer d.locker.Unlock()
	for _, v := range d.history[depotKey{realm: realm, id: id}] {
		if v.Version == version {
			return &v, nil
		}
	}
	return nil, nil
}

func (d *depotStore) Delete(ctx context.Context, realm, id string) error {
	d.locker.Lock()
	defer d.locker.Unlock()
	delete(d.depots, depotKey{realm: realm, id: id})
	// History stays for audit.
	return nil
}
