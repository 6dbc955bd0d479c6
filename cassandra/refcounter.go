package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/cascade"
)

type refCounter struct{}

// NewRefCounter instantiates the Cassandra-backed reference counter. Increment
// and Decrement run as lightweight transactions so concurrent callers on the
// same (realm, key) serialise on the Paxos round.
func NewRefCounter() cascade.RefCounter {
	return &refCounter{}
}

// casAttempts bounds the LWT retry loop under contention.
const casAttempts = 10

type pendingCursor struct {
	FirstSeen time.Time   `json:"t"`
	Realm     string      `json:"r"`
	Key       cascade.Key `json:"k"`
}

// gc_pending uses a single status partition; rows exist only for GCPending records.
const gcStatusPending = 1

func (r *refCounter) Increment(ctx context.Context, realm string, key cascade.Key, physicalSize, logicalSize int64) (cascade.IncrementResult, error) {
	if connection == nil {
		return cascade.IncrementResult{}, errClosed()
	}
	for i := 0; i < casAttempts; i++ {
		cur, err := r.Get(ctx, realm, key)
		if err != nil {
			return cascade.IncrementResult{}, err
		}
		if cur == nil {
			now := cascade.Now()
			insertStatement := fmt.Sprintf("INSERT INTO %s.refcount (realm, key, count, physical_size, logical_size, gc_state, first_seen) VALUES(?,?,?,?,?,?,?) IF NOT EXISTS;", connection.Config.Keyspace)
			applied, err := connection.Session.Query(insertStatement, realm, string(key), int64(1), physicalSize, logicalSize, int(cascade.GCActive), now).WithContext(ctx).ScanCAS()
			if err != nil {
				return cascade.IncrementResult{}, cascade.Error{Code: cascade.Transient, Err: err}
			}
			if !applied {
				// Another writer created it first; retry on the live record.
				continue
			}
			if err := r.addKeyRealm(ctx, realm, key); err != nil {
				return cascade.IncrementResult{}, err
			}
			return cascade.IncrementResult{Count: 1, WasZeroBefore: true}, nil
		}
		newCount := cur.Count + 1
		updateStatement := fmt.Sprintf("UPDATE %s.refcount SET count = ?, gc_state = ? WHERE realm = ? AND key = ? IF count = ?;", connection.Config.Keyspace)
		applied, err := connection.Session.Query(updateStatement, newCount, int(cascade.GCActive), realm, string(key), cur.Count).WithContext(ctx).ScanCAS()
		if err != nil {
			return cascade.IncrementResult{}, cascade.Error{Code: cascade.Transient, Err: err}
		}
		if !applied {
			continue
		}
		if cur.Count == 0 {
			// Reactivated; pull it off the GC queue. The key_realms row never
			// left: it tracks the record, not the live count.
			if err := r.removePending(ctx, cur.FirstSeenAt, realm, key); err != nil {
				return cascade.IncrementResult{}, err
			}
		}
		return cascade.IncrementResult{Count: newCount, WasZeroBefore: cur.Count == 0}, nil
	}
	return cascade.IncrementResult{}, cascade.Error{Code: cascade.Transient, Err: fmt.Errorf("increment of %s/%s lost %d CAS rounds", realm, key, casAttempts)}
}

func (r *refCounter) Decrement(ctx context.Context, realm string, key cascade.Key) (cascade.DecrementResult, error) {
	if connection == nil {
		return cascade.DecrementResult{}, errClosed()
	}
	for i := 0; i < casAttempts; i++ {
		cur, err := r.Get(ctx, realm, key)
		if err != nil {
			return cascade.DecrementResult{}, err
		}
		if cur == nil || cur.Count == 0 {
			// Fails silently; nothing to decrement.
			return cascade.DecrementResult{Count: 0, BecameZero: false}, nil
		}
		newCount := cur.Count - 1
		newState := cascade.GCActive
		if newCount == 0 {
			newState = cascade.GCPending
		}
		updateStatement := fmt.Sprintf("UPDATE %s.refcount SET count = ?, gc_state = ? WHERE realm = ? AND key = ? IF count = ?;", connection.Config.Keyspace)
		applied, err := connection.Session.Query(updateStatement, newCount, int(newState), realm, string(key), cur.Count).WithContext(ctx).ScanCAS()
		if err != nil {
			return cascade.DecrementResult{}, cascade.Error{Code: cascade.Transient, Err: err}
		}
		if !applied {
			continue
		}
		if newCount == 0 {
			insertStatement := fmt.Sprintf("INSERT INTO %s.gc_pending (gc_status, first_seen, realm, key) VALUES(?,?,?,?);", connection.Config.Keyspace)
			if err := connection.Session.Query(insertStatement, gcStatusPending, cur.FirstSeenAt, realm, string(key)).WithContext(ctx).Exec(); err != nil {
				return cascade.DecrementResult{}, cascade.Error{Code: cascade.Transient, Err: err}
			}
		}
		return cascade.DecrementResult{Count: newCount, BecameZero: newCount == 0}, nil
	}
	return cascade.DecrementResult{}, cascade.Error{Code: cascade.Transient, Err: fmt.Errorf("decrement of %s/%s lost %d CAS rounds", realm, key, casAttempts)}
}

func (r *refCounter) Get(ctx context.Context, realm string, key cascade.Key) (*cascade.RefCountEntry, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT count, physical_size, logical_size, gc_state, first_seen FROM %s.refcount WHERE realm = ? AND key = ?;", connection.Config.Keyspace)
	qry := connection.Session.Query(selectStatement, realm, string(key)).WithContext(ctx)
	if connection.Config.ConsistencyBook.RefCountGet > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.RefCountGet)
	}
	e := cascade.RefCountEntry{Realm: realm, Key: key}
	var state int
	if err := qry.Scan(&e.Count, &e.PhysicalSize, &e.LogicalSize, &state, &e.FirstSeenAt); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	e.GCState = cascade.GCState(state)
	return &e, nil
}

func (r *refCounter) ListPending(ctx context.Context, before time.Time, limit int, cursor string) ([]cascade.RefCountEntry, string, error) {
	if connection == nil {
		return nil, "", errClosed()
	}
	var qry *gocql.Query
	if cursor == "" {
		selectStatement := fmt.Sprintf("SELECT first_seen, realm, key FROM %s.gc_pending WHERE gc_status = ? AND first_seen < ? LIMIT ?;", connection.Config.Keyspace)
		qry = connection.Session.Query(selectStatement, gcStatusPending, before, limit)
	} else {
		var c pendingCursor
		if err := decodeCursor(cursor, &c); err != nil {
			return nil, "", err
		}
		// The tuple relation resumes after the cursor row; the before bound is
		// re-checked below since CQL allows only one relation per column.
		selectStatement := fmt.Sprintf("SELECT first_seen, realm, key FROM %s.gc_pending WHERE gc_status = ? AND (first_seen, realm, key) > (?, ?, ?) LIMIT ?;", connection.Config.Keyspace)
		qry = connection.Session.Query(selectStatement, gcStatusPending, c.FirstSeen, c.Realm, string(c.Key), limit)
	}
	iter := qry.WithContext(ctx).Iter()
	var rows []pendingCursor
	var c pendingCursor
	var key string
	exhausted := true
	for iter.Scan(&c.FirstSeen, &c.Realm, &key) {
		if !c.FirstSeen.Before(before) {
			break
		}
		c.Key = cascade.Key(key)
		rows = append(rows, c)
		if len(rows) == limit {
			exhausted = false
			break
		}
	}
	if err := iter.Close(); err != nil {
		return nil, "", cascade.Error{Code: cascade.Transient, Err: err}
	}
	entries := make([]cascade.RefCountEntry, 0, len(rows))
	for _, row := range rows {
		e, err := r.Get(ctx, row.Realm, row.Key)
		if err != nil {
			return nil, "", err
		}
		if e == nil || e.GCState != cascade.GCPending {
			// Raced with a reactivation or a delete; skip the stale queue row.
			continue
		}
		entries = append(entries, *e)
	}
	next := ""
	if !exhausted && len(rows) > 0 {
		next = encodeCursor(rows[len(rows)-1])
	}
	return entries, next, nil
}

func (r *refCounter) CountGlobal(ctx context.Context, key cascade.Key) (int, error) {
	if connection == nil {
		return 0, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT COUNT(*) FROM %s.key_realms WHERE key = ?;", connection.Config.Keyspace)
	var n int
	if err := connection.Session.Query(selectStatement, string(key)).WithContext(ctx).Scan(&n); err != nil {
		return 0, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return n, nil
}

func (r *refCounter) Delete(ctx context.Context, realm string, key cascade.Key) error {
	if connection == nil {
		return errClosed()
	}
	cur, err := r.Get(ctx, realm, key)
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	deleteStatement := fmt.Sprintf("DELETE FROM %s.refcount WHERE realm = ? AND key = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, realm, string(key)).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	if err := r.removePending(ctx, cur.FirstSeenAt, realm, key); err != nil {
		return err
	}
	deleteStatement = fmt.Sprintf("DELETE FROM %s.key_realms WHERE key = ? AND realm = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, string(key), realm).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (r *refCounter) addKeyRealm(ctx context.Context, realm string, key cascade.Key) error {
	insertStatement := fmt.Sprintf("INSERT INTO %s.key_realms (key, realm) VALUES(?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, string(key), realm).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (r *refCounter) removePending(ctx context.Context, firstSeen time.Time, realm string, key cascade.Key) error {
	deleteStatement := fmt.Sprintf("DELETE FROM %s.gc_pending WHERE gc_status = ? AND first_seen = ? AND realm = ? AND key = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, gcStatusPending, firstSeen, realm, string(key)).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}
