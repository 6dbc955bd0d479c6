package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/sharedcode/cascade"
)

type blobStore struct{}

// NewBlobStore instantiates the Cassandra blob store backend. Suitable when
// nodes are capped small; larger deployments should prefer the fs or s3
// backends.
func NewBlobStore() cascade.BlobStore {
	return &blobStore{}
}

func (b *blobStore) Has(ctx context.Context, key cascade.Key) (bool, error) {
	if connection == nil {
		return false, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT key FROM %s.blobs WHERE key = ?;", connection.Config.Keyspace)
	qry := connection.Session.Query(selectStatement, string(key)).WithContext(ctx)
	if connection.Config.ConsistencyBook.BlobStoreGet > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.BlobStoreGet)
	}
	var k string
	if err := qry.Scan(&k); err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return true, nil
}

func (b *blobStore) Get(ctx context.Context, key cascade.Key) ([]byte, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT node FROM %s.blobs WHERE key = ?;", connection.Config.Keyspace)
	qry := connection.Session.Query(selectStatement, string(key)).WithContext(ctx)
	if connection.Config.ConsistencyBook.BlobStoreGet > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.BlobStoreGet)
	}
	var ba []byte
	if err := qry.Scan(&ba); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return ba, nil
}

func (b *blobStore) Put(ctx context.Context, key cascade.Key, ba []byte) error {
	if connection == nil {
		return errClosed()
	}
	if actual := cascade.NewKey(ba); actual != key {
		return cascade.Error{
			Code:     cascade.HashMismatch,
			Err:      fmt.Errorf("expected key %s, actual %s", key, actual),
			UserData: actual,
		}
	}
	// Duplicate puts overwrite with identical bytes, harmless.
	insertStatement := fmt.Sprintf("INSERT INTO %s.blobs (key, node) VALUES(?,?);", connection.Config.Keyspace)
	qry := connection.Session.Query(insertStatement, string(key), ba).WithContext(ctx)
	if connection.Config.ConsistencyBook.BlobStoreAdd > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.BlobStoreAdd)
	}
	if err := qry.Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (b *blobStore) Erase(ctx context.Context, key cascade.Key) error {
	if connection == nil {
		return errClosed()
	}
	deleteStatement := fmt.Sprintf("DELETE FROM %s.blobs WHERE key = ?;", connection.Config.Keyspace)
	qry := connection.Session.Query(deleteStatement, string(key)).WithContext(ctx)
	if connection.Config.ConsistencyBook.BlobStoreRemove > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.BlobStoreRemove)
	}
	if err := qry.Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}
