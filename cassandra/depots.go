package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/sharedcode/cascade"
)

type depotStore struct{}

// NewDepotStore instantiates the Cassandra-backed depot store. Name uniqueness
// and root swaps go through LWTs; history rows are append-only and outlive
// their depot for audit.
func NewDepotStore() cascade.DepotStore {
	return &depotStore{}
}

func (d *depotStore) Create(ctx context.Context, depot cascade.Depot) error {
	if connection == nil {
		return errClosed()
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.depot_names (realm, name, id) VALUES(?,?,?) IF NOT EXISTS;", connection.Config.Keyspace)
	applied, err := connection.Session.Query(insertStatement, depot.Realm, depot.Name, depot.ID).WithContext(ctx).ScanCAS()
	if err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	if !applied {
		return cascade.Error{Code: cascade.Conflict, Err: fmt.Errorf("depot name %q already exists in realm %s", depot.Name, depot.Realm)}
	}
	insertStatement = fmt.Sprintf("INSERT INTO %s.depots (realm, id, name, root, version, description, created_at, updated_at) VALUES(?,?,?,?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, depot.Realm, depot.ID, depot.Name, string(depot.Root), depot.Version, depot.Description, depot.CreatedAt, depot.UpdatedAt).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return d.appendHistory(ctx, depot.Realm, depot.ID, cascade.DepotVersion{
		Version:   depot.Version,
		Root:      depot.Root,
		Message:   "created",
		CreatedAt: depot.CreatedAt,
	})
}

func (d *depotStore) Get(ctx context.Context, realm, id string) (*cascade.Depot, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT name, root, version, description, created_at, updated_at FROM %s.depots WHERE realm = ? AND id = ?;", connection.Config.Keyspace)
	depot := cascade.Depot{Realm: realm, ID: id}
	var root string
	if err := connection.Session.Query(selectStatement, realm, id).WithContext(ctx).Scan(&depot.Name, &root, &depot.Version, &depot.Description, &depot.CreatedAt, &depot.UpdatedAt); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	depot.Root = cascade.Key(root)
	return &depot, nil
}

func (d *depotStore) GetByName(ctx context.Context, realm, name string) (*cascade.Depot, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT id FROM %s.depot_names WHERE realm = ? AND name = ?;", connection.Config.Keyspace)
	var id string
	if err := connection.Session.Query(selectStatement, realm, name).WithContext(ctx).Scan(&id); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return d.Get(ctx, realm, id)
}

func (d *depotStore) List(ctx context.Context, realm string) ([]cascade.Depot, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT id, name, root, version, description, created_at, updated_at FROM %s.depots WHERE realm = ?;", connection.Config.Keyspace)
	iter := connection.Session.Query(selectStatement, realm).WithContext(ctx).Iter()
	var depots []cascade.Depot
	depot := cascade.Depot{Realm: realm}
	var root string
	for iter.Scan(&depot.ID, &depot.Name, &root, &depot.Version, &depot.Description, &depot.CreatedAt, &depot.UpdatedAt) {
		depot.Root = cascade.Key(root)
		depots = append(depots, depot)
	}
	if err := iter.Close(); err != nil {
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return depots, nil
}

func (d *depotStore) SwapRoot(ctx context.Context, realm, id string, expectVersion int64, newRoot cascade.Key, message string) (*cascade.Depot, error) {
	if connection == nil {
		return nil, errClosed()
	}
	now := cascade.Now()
	newVersion := expectVersion + 1
	updateStatement := fmt.Sprintf("UPDATE %s.depots SET root = ?, version = ?, updated_at = ? WHERE realm = ? AND id = ? IF version = ?;", connection.Config.Keyspace)
	applied, err := connection.Session.Query(updateStatement, string(newRoot), newVersion, now, realm, id, expectVersion).WithContext(ctx).ScanCAS()
	if err != nil {
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	if !applied {
		cur, err := d.Get(ctx, realm, id)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no depot %s in realm %s", id, realm)}
		}
		return nil, cascade.Error{Code: cascade.Conflict, Err: fmt.Errorf("depot %s is at version %d, expected %d", id, cur.Version, expectVersion), UserData: cur.Version}
	}
	if err := d.appendHistory(ctx, realm, id, cascade.DepotVersion{
		Version:   newVersion,
		Root:      newRoot,
		Message:   message,
		CreatedAt: now,
	}); err != nil {
		return nil, err
	}
	return d.Get(ctx, realm, id)
}

func (d *depotStore) History(ctx context.Context, realm, id string) ([]cascade.DepotVersion, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT version, root, message, created_at FROM %s.depot_history WHERE realm = ? AND id = ?;", connection.Config.Keyspace)
	iter := connection.Session.Query(selectStatement, realm, id).WithContext(ctx).Iter()
	var versions []cascade.DepotVersion
	var v cascade.DepotVersion
	var root string
	for iter.Scan(&v.Version, &root, &v.Message, &v.CreatedAt) {
		v.Root = cascade.Key(root)
		versions = append(versions, v)
	}
	if err := iter.Close(); err != nil {
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return versions, nil
}

func (d *depotStore) GetVersion(ctx context.Context, realm, id string, version int64) (*cascade.DepotVersion, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT root, message, created_at FROM %s.depot_history WHERE realm = ? AND id = ? AND version = ?;", connection.Config.Keyspace)
	v := cascade.DepotVersion{Version: version}
	var root string
	if err := connection.Session.Query(selectStatement, realm, id, version).WithContext(ctx).Scan(&root, &v.Message, &v.CreatedAt); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	v.Root = cascade.Key(root)
	return &v, nil
}

func (d *depotStore) Delete(ctx context.Context, realm, id string) error {
	if connection == nil {
		return errClosed()
	}
	depot, err := d.Get(ctx, realm, id)
	if err != nil {
		return err
	}
	if depot == nil {
		return nil
	}
	deleteStatement := fmt.Sprintf("DELETE FROM %s.depots WHERE realm = ? AND id = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, realm, id).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	deleteStatement = fmt.Sprintf("DELETE FROM %s.depot_names WHERE realm = ? AND name = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, realm, depot.Name).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	// History rows stay for audit.
	return nil
}

func (d *depotStore) appendHistory(ctx context.Context, realm, id string, v cascade.DepotVersion) error {
	insertStatement := fmt.Sprintf("INSERT INTO %s.depot_history (realm, id, version, root, message, created_at) VALUES(?,?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, realm, id, v.Version, string(v.Root), v.Message, v.CreatedAt).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}
