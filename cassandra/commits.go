package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/cascade"
)

type commitStore struct{}

// NewCommitStore instantiates the Cassandra-backed commit store.
func NewCommitStore() cascade.CommitStore {
	return &commitStore{}
}

type commitCursor struct {
	CreatedAt time.Time   `json:"t"`
	Root      cascade.Key `json:"r"`
}

func (c *commitStore) Create(ctx context.Context, commit cascade.Commit) error {
	if connection == nil {
		return errClosed()
	}
	// LWT so a racing commit of the same root loses deterministically.
	insertStatement := fmt.Sprintf("INSERT INTO %s.commits (realm, root, title, created_at, created_by) VALUES(?,?,?,?,?) IF NOT EXISTS;", connection.Config.Keyspace)
	applied, err := connection.Session.Query(insertStatement, commit.Realm, string(commit.Root), commit.Title, commit.CreatedAt, commit.CreatedBy).WithContext(ctx).MapScanCAS(map[string]interface{}{})
	if err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	if !applied {
		return cascade.Error{Code: cascade.Conflict, Err: fmt.Errorf("root %s is already committed in realm %s", commit.Root, commit.Realm)}
	}
	insertStatement = fmt.Sprintf("INSERT INTO %s.commits_by_time (realm, created_at, root, title, created_by) VALUES(?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, commit.Realm, commit.CreatedAt, string(commit.Root), commit.Title, commit.CreatedBy).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (c *commitStore) Get(ctx context.Context, realm string, root cascade.Key) (*cascade.Commit, error) {
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT title, created_at, created_by FROM %s.commits WHERE realm = ? AND root = ?;", connection.Config.Keyspace)
	commit := cascade.Commit{Realm: realm, Root: root}
	if err := connection.Session.Query(selectStatement, realm, string(root)).WithContext(ctx).Scan(&commit.Title, &commit.CreatedAt, &commit.CreatedBy); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return &commit, nil
}

func (c *commitStore) SetTitle(ctx context.Context, realm string, root cascade.Key, title string) error {
	if connection == nil {
		return errClosed()
	}
	commit, err := c.Get(ctx, realm, root)
	if err != nil {
		return err
	}
	if commit == nil {
		return cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no commit of %s in realm %s", root, realm)}
	}
	updateStatement := fmt.Sprintf("UPDATE %s.commits SET title = ? WHERE realm = ? AND root = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(updateStatement, title, realm, string(root)).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	updateStatement = fmt.Sprintf("UPDATE %s.commits_by_time SET title = ? WHERE realm = ? AND created_at = ? AND root = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(updateStatement, title, realm, commit.CreatedAt, string(root)).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (c *commitStore) Delete(ctx context.Context, realm string, root cascade.Key) error {
	if connection == nil {
		return errClosed()
	}
	commit, err := c.Get(ctx, realm, root)
	if err != nil {
		return err
	}
	if commit == nil {
		return nil
	}
	deleteStatement := fmt.Sprintf("DELETE FROM %s.commits WHERE realm = ? AND root = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, realm, string(root)).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	deleteStatement = fmt.Sprintf("DELETE FROM %s.commits_by_time WHERE realm = ? AND created_at = ? AND root = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, realm, commit.CreatedAt, string(root)).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	return nil
}

func (c *commitStore) List(ctx context.Context, realm string, limit int, cursor string) ([]cascade.Commit, string, error) {
	if connection == nil {
		return nil, "", errClosed()
	}
	var qry *gocql.Query
	if cursor == "" {
		selectStatement := fmt.Sprintf("SELECT created_at, root, title, created_by FROM %s.commits_by_time WHERE realm = ? LIMIT ?;", connection.Config.Keyspace)
		qry = connection.Session.Query(selectStatement, realm, limit)
	} else {
		var cc commitCursor
		if err := decodeCursor(cursor, &cc); err != nil {
			return nil, "", err
		}
		selectStatement := fmt.Sprintf("SELECT created_at, root, title, created_by FROM %s.commits_by_time WHERE realm = ? AND (created_at, root) < (?, ?) LIMIT ?;", connection.Config.Keyspace)
		qry = connection.Session.Query(selectStatement, realm, cc.CreatedAt, string(cc.Root), limit)
	}
	iter := qry.WithContext(ctx).Iter()
	commits := make([]cascade.Commit, 0, limit)
	commit := cascade.Commit{Realm: realm}
	var root string
	for iter.Scan(&commit.CreatedAt, &root, &commit.Title, &commit.CreatedBy) {
		commit.Root = cascade.Key(root)
		commits = append(commits, commit)
	}
	if err := iter.Close(); err != nil {
		return nil, "", cascade.Error{Code: cascade.Transient, Err: err}
	}
	next := ""
	if len(commits) == limit {
		last := commits[len(commits)-1]
		next = encodeCursor(commitCursor{CreatedAt: last.CreatedAt, Root: last.Root})
	}
	return commits, next, nil
}
