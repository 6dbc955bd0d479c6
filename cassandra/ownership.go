package cassandra

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/cascade"
)

type ownershipLedger struct {
	l2 cascade.Cache
}

// NewOwnershipLedger instantiates the Cassandra-backed ownership ledger.
func NewOwnershipLedger() cascade.OwnershipLedger {
	return &ownershipLedger{}
}

// NewCachedOwnershipLedger layers the redis cache over ownership reads, which
// dominate the put hot path through child validation. Only present entries are
// cached; Remove invalidates, so a reclaimed entry lingers at most the cache
// duration on other nodes, well inside the protection window.
func NewCachedOwnershipLedger(l2 cascade.Cache) cascade.OwnershipLedger {
	return &ownershipLedger{l2: l2}
}

const ownershipCacheDuration = 5 * time.Minute

func ownershipCacheKey(realm string, key cascade.Key) string {
	return "own_" + realm + "_" + string(key)
}

type ownershipCursor struct {
	CreatedAt time.Time   `json:"t"`
	Key       cascade.Key `json:"k"`
}

func (o *ownershipLedger) Add(ctx context.Context, entry cascade.OwnershipEntry) error {
	if connection == nil {
		return errClosed()
	}
	// The two tables are written unconditionally; Add is idempotent because a
	// re-add carries the same column values for the same (realm, key).
	existing, err := o.Get(ctx, entry.Realm, entry.Key)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.ownership (realm, key, kind, content_type, byte_size, created_at, created_by) VALUES(?,?,?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, entry.Realm, string(entry.Key), int8(entry.Kind), entry.ContentType, entry.ByteSize, entry.CreatedAt, entry.CreatedBy).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	insertStatement = fmt.Sprintf("INSERT INTO %s.ownership_by_time (realm, created_at, key, kind, content_type, byte_size, created_by) VALUES(?,?,?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, entry.Realm, entry.CreatedAt, string(entry.Key), int8(entry.Kind), entry.ContentType, entry.ByteSize, entry.CreatedBy).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (o *ownershipLedger) Has(ctx context.Context, realm string, key cascade.Key) (bool, error) {
	e, err := o.Get(ctx, realm, key)
	if err != nil {
		return false, err
	}
	return e != nil, nil
}

func (o *ownershipLedger) Get(ctx context.Context, realm string, key cascade.Key) (*cascade.OwnershipEntry, error) {
	if connection == nil {
		return nil, errClosed()
	}
	if o.l2 != nil {
		var cached cascade.OwnershipEntry
		found, err := o.l2.GetStruct(ctx, ownershipCacheKey(realm, key), &cached)
		if err != nil {
			log.Warn(fmt.Sprintf("ownership cache get for %s/%s failed, details: %v", realm, key, err))
		} else if found {
			return &cached, nil
		}
	}
	selectStatement := fmt.Sprintf("SELECT kind, content_type, byte_size, created_at, created_by FROM %s.ownership WHERE realm = ? AND key = ?;", connection.Config.Keyspace)
	qry := connection.Session.Query(selectStatement, realm, string(key)).WithContext(ctx)
	if connection.Config.ConsistencyBook.OwnershipGet > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.OwnershipGet)
	}
	e := cascade.OwnershipEntry{Realm: realm, Key: key}
	var kind int8
	if err := qry.Scan(&kind, &e.ContentType, &e.ByteSize, &e.CreatedAt, &e.CreatedBy); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	e.Kind = cascade.NodeKind(kind)
	if o.l2 != nil {
		if err := o.l2.SetStruct(ctx, ownershipCacheKey(realm, key), e, ownershipCacheDuration); err != nil {
			log.Warn(fmt.Sprintf("ownership cache set for %s/%s failed, details: %v", realm, key, err))
		}
	}
	return &e, nil
}

func (o *ownershipLedger) Check(ctx context.Context, realm string, keys []cascade.Key) (present []cascade.Key, missing []cascade.Key, err error) {
	for _, k := range keys {
		ok, err := o.Has(ctx, realm, k)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			present = append(present, k)
		} else {
			missing = append(missing, k)
		}
	}
	return present, missing, nil
}

func (o *ownershipLedger) List(ctx context.Context, realm string, limit int, cursor string) ([]cascade.OwnershipEntry, string, error) {
	if connection == nil {
		return nil, "", errClosed()
	}
	var qry *gocql.Query
	if cursor == "" {
		selectStatement := fmt.Sprintf("SELECT created_at, key, kind, content_type, byte_size, created_by FROM %s.ownership_by_time WHERE realm = ? LIMIT ?;", connection.Config.Keyspace)
		qry = connection.Session.Query(selectStatement, realm, limit)
	} else {
		var c ownershipCursor
		if err := decodeCursor(cursor, &c); err != nil {
			return nil, "", err
		}
		selectStatement := fmt.Sprintf("SELECT created_at, key, kind, content_type, byte_size, created_by FROM %s.ownership_by_time WHERE realm = ? AND (created_at, key) < (?, ?) LIMIT ?;", connection.Config.Keyspace)
		qry = connection.Session.Query(selectStatement, realm, c.CreatedAt, string(c.Key), limit)
	}
	qry = qry.WithContext(ctx)
	if connection.Config.ConsistencyBook.OwnershipGet > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.OwnershipGet)
	}
	iter := qry.Iter()
	entries := make([]cascade.OwnershipEntry, 0, limit)
	var key string
	var kind int8
	e := cascade.OwnershipEntry{Realm: realm}
	for iter.Scan(&e.CreatedAt, &key, &kind, &e.ContentType, &e.ByteSize, &e.CreatedBy) {
		e.Key = cascade.Key(key)
		e.Kind = cascade.NodeKind(kind)
		entries = append(entries, e)
	}
	if err := iter.Close(); err != nil {
		return nil, "", cascade.Error{Code: cascade.Transient, Err: err}
	}
	next := ""
	if len(entries) == limit {
		last := entries[len(entries)-1]
		next = encodeCursor(ownershipCursor{CreatedAt: last.CreatedAt, Key: last.Key})
	}
	return entries, next, nil
}

func (o *ownershipLedger) Remove(ctx context.Context, realm string, key cascade.Key) error {
	if connection == nil {
		return errClosed()
	}
	e, err := o.Get(ctx, realm, key)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	deleteStatement := fmt.Sprintf("DELETE FROM %s.ownership WHERE realm = ? AND key = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, realm, string(key)).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	deleteStatement = fmt.Sprintf("DELETE FROM %s.ownership_by_time WHERE realm = ? AND created_at = ? AND key = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, realm, e.CreatedAt, string(key)).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	if o.l2 != nil {
		if _, err := o.l2.Delete(ctx, []string{ownershipCacheKey(realm, key)}); err != nil {
			log.Warn(fmt.Sprintf("ownership cache invalidation for %s/%s failed, details: %v", realm, key, err))
		}
	}
	return nil
}
