package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"github.com/sharedcode/cascade"
)

type pendingAuthStore struct{}

// NewPendingAuthStore instantiates the Cassandra-backed enrolment candidate store.
func NewPendingAuthStore() cascade.PendingAuthStore {
	return &pendingAuthStore{}
}

func (p *pendingAuthStore) Create(ctx context.Context, pa cascade.PendingAuth) error {
	if connection == nil {
		return errClosed()
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.pending_auth (pubkey, code, user_id, approved, created_at, expires_at) VALUES(?,?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, pa.Pubkey, pa.Code, pa.UserID, pa.Approved, pa.CreatedAt, pa.ExpiresAt).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (p *pendingAuthStore) Get(ctx context.Context, pubkey string) (*cascade.PendingAuth, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT code, user_id, approved, created_at, expires_at FROM %s.pending_auth WHERE pubkey = ?;", connection.Config.Keyspace)
	pa := cascade.PendingAuth{Pubkey: pubkey}
	if err := connection.Session.Query(selectStatement, pubkey).WithContext(ctx).Scan(&pa.Code, &pa.UserID, &pa.Approved, &pa.CreatedAt, &pa.ExpiresAt); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	if pa.Expired(cascade.Now()) {
		return nil, nil
	}
	return &pa, nil
}

func (p *pendingAuthStore) Approve(ctx context.Context, pubkey, userID string) error {
	if connection == nil {
		return errClosed()
	}
	pa, err := p.Get(ctx, pubkey)
	if err != nil {
		return err
	}
	if pa == nil {
		return cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no pending enrolment for pubkey")}
	}
	updateStatement := fmt.Sprintf("UPDATE %s.pending_auth SET approved = true, user_id = ? WHERE pubkey = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(updateStatement, userID, pubkey).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (p *pendingAuthStore) ValidateCode(ctx context.Context, pubkey, code string) (bool, error) {
	pa, err := p.Get(ctx, pubkey)
	if err != nil || pa == nil {
		return false, err
	}
	return pa.Code == code, nil
}

func (p *pendingAuthStore) Delete(ctx context.Context, pubkey string) error {
	if connection == nil {
		return errClosed()
	}
	deleteStatement := fmt.Sprintf("DELETE FROM %s.pending_auth WHERE pubkey = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, pubkey).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

type pubkeyStore struct{}

// NewPubkeyStore instantiates the Cassandra-backed enrolled pubkey store.
func NewPubkeyStore() cascade.PubkeyStore {
	return &pubkeyStore{}
}

func (p *pubkeyStore) Lookup(ctx context.Context, pubkey string) (*cascade.AuthorizedPubkey, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT user_id, name, algorithm, created_at FROM %s.pubkeys WHERE pubkey = ?;", connection.Config.Keyspace)
	pk := cascade.AuthorizedPubkey{Pubkey: pubkey}
	if err := connection.Session.Query(selectStatement, pubkey).WithContext(ctx).Scan(&pk.UserID, &pk.Name, &pk.Algorithm, &pk.CreatedAt); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return &pk, nil
}

func (p *pubkeyStore) Store(ctx context.Context, pk cascade.AuthorizedPubkey) error {
	if connection == nil {
		return errClosed()
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.pubkeys (pubkey, user_id, name, algorithm, created_at) VALUES(?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, pk.Pubkey, pk.UserID, pk.Name, pk.Algorithm, pk.CreatedAt).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	insertStatement = fmt.Sprintf("INSERT INTO %s.pubkeys_by_user (user_id, pubkey) VALUES(?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, pk.UserID, pk.Pubkey).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (p *pubkeyStore) Revoke(ctx context.Context, pubkey string) error {
	if connection == nil {
		return errClosed()
	}
	pk, err := p.Lookup(ctx, pubkey)
	if err != nil {
		return err
	}
	if pk == nil {
		return nil
	}
	deleteStatement := fmt.Sprintf("DELETE FROM %s.pubkeys WHERE pubkey = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, pubkey).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	deleteStatement = fmt.Sprintf("DELETE FROM %s.pubkeys_by_user WHERE user_id = ? AND pubkey = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, pk.UserID, pubkey).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (p *pubkeyStore) ListByUser(ctx context.Context, userID string) ([]cascade.AuthorizedPubkey, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT pubkey FROM %s.pubkeys_by_user WHERE user_id = ?;", connection.Config.Keyspace)
	iter := connection.Session.Query(selectStatement, userID).WithContext(ctx).Iter()
	var pubkeys []string
	var pubkey string
	for iter.Scan(&pubkey) {
		pubkeys = append(pubkeys, pubkey)
	}
	if err := iter.Close(); err != nil {
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	var pks []cascade.AuthorizedPubkey
	for _, pub := range pubkeys {
		pk, err := p.Lookup(ctx, pub)
		if err != nil {
			return nil, err
		}
		if pk != nil {
			pks = append(pks, *pk)
		}
	}
	return pks, nil
}
