// Package cassandra implements the persistent stores of cascade on a
// Cassandra keyspace: ownership, ref counts, usage, tokens, pubkeys, commits,
// depots and (optionally) the blobs themselves.
package cassandra

import (
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
)

// Config contains configuration for connecting to a Cassandra cluster and the
// cascade keyspace.
type Config struct {
	// ClusterHosts lists contact points for the Cassandra cluster.
	ClusterHosts []string
	// Keyspace is the keyspace used for cascade tables.
	Keyspace string
	// Consistency is the default consistency level for queries.
	Consistency gocql.Consistency
	// ConnectionTimeout is the session connection timeout.
	ConnectionTimeout time.Duration
	// Authenticator is used when the cluster requires authentication.
	Authenticator gocql.Authenticator
	// ReplicationClause defines the keyspace replication (e.g., SimpleStrategy).
	ReplicationClause string

	// ConsistencyBook allows overriding per-API consistency levels.
	ConsistencyBook ConsistencyBook
}

// ConsistencyBook enumerates per-API consistency levels used by this package.
// Ref count and depot mutations go through lightweight transactions and keep
// their serial consistency regardless of these settings.
type ConsistencyBook struct {
	OwnershipAdd    gocql.Consistency
	OwnershipGet    gocql.Consistency
	OwnershipRemove gocql.Consistency
	RefCountGet     gocql.Consistency
	UsageGet        gocql.Consistency
	TokenGet        gocql.Consistency

	// Blob store consistency levels are only used when the blob backend is Cassandra.
	BlobStoreAdd    gocql.Consistency
	BlobStoreGet    gocql.Consistency
	BlobStoreRemove gocql.Consistency
}

// Connection wraps a Cassandra session and its configuration.
type Connection struct {
	Session *gocql.Session
	Config
}

var connection *Connection
var mux sync.Mutex

// IsConnectionInstantiated reports whether a global Connection has been created.
func IsConnectionInstantiated() bool {
	return connection != nil
}

// OpenConnection returns the existing global Connection or opens a new one
// using the provided config, creating the keyspace and tables if needed.
func OpenConnection(config Config) (*Connection, error) {
	if connection != nil {
		return connection, nil
	}
	mux.Lock()
	defer mux.Unlock()

	if connection != nil {
		return connection, nil
	}
	if config.Keyspace == "" {
		// default keyspace
		config.Keyspace = "cascade"
	}
	if config.Consistency == gocql.Any {
		// Defaults to LocalQuorum consistency. You should set it to an appropriate level.
		config.Consistency = gocql.LocalQuorum
	}
	cluster := gocql.NewCluster(config.ClusterHosts...)
	cluster.Consistency = config.Consistency
	if config.ReplicationClause == "" {
		// Specify an appropriate replication feature.
		config.ReplicationClause = "{'class':'SimpleStrategy', 'replication_factor':1}"
	}
	if config.ConnectionTimeout > 0 {
		cluster.ConnectTimeout = config.ConnectionTimeout
	}
	if config.Authenticator != nil {
		cluster.Authenticator = config.Authenticator
		// Clear the authenticator just to be safer, we don't need to keep it hanging around.
		config.Authenticator = nil
	}
	var c = Connection{
		Config: config,
	}
	s, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	if err := s.Query(fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s;", config.Keyspace, config.ReplicationClause)).Exec(); err != nil {
		return nil, err
	}
	ddl := []string{
		// Point lookups of ownership by (realm, key).
		"CREATE TABLE IF NOT EXISTS %s.ownership (realm text, key text, kind tinyint, content_type text, byte_size bigint, created_at timestamp, created_by text, PRIMARY KEY(realm, key));",
		// Newest-first listing of a realm's ownership.
		"CREATE TABLE IF NOT EXISTS %s.ownership_by_time (realm text, created_at timestamp, key text, kind tinyint, content_type text, byte_size bigint, created_by text, PRIMARY KEY(realm, created_at, key)) WITH CLUSTERING ORDER BY (created_at DESC, key DESC);",
		// Per-(realm,key) reference records, mutated through LWTs.
		"CREATE TABLE IF NOT EXISTS %s.refcount (realm text, key text, count bigint, physical_size bigint, logical_size bigint, gc_state int, first_seen timestamp, PRIMARY KEY(realm, key));",
		// GC work queue: single status partition ordered by first_seen.
		"CREATE TABLE IF NOT EXISTS %s.gc_pending (gc_status int, first_seen timestamp, realm text, key text, PRIMARY KEY(gc_status, first_seen, realm, key));",
		// Which realms hold a ref record for the key; rows live until the
		// realm's record is deleted, pending records included.
		"CREATE TABLE IF NOT EXISTS %s.key_realms (key text, realm text, PRIMARY KEY(key, realm));",
		// Per-realm usage summary; ver guards the LWT read-modify-write.
		"CREATE TABLE IF NOT EXISTS %s.usage (realm text PRIMARY KEY, physical_bytes bigint, logical_bytes bigint, node_count bigint, quota_limit bigint, updated_at timestamp, ver bigint);",
		"CREATE TABLE IF NOT EXISTS %s.tokens (id text PRIMARY KEY, kind int, user_id text, name text, description text, realm text, read_scope text, has_commit boolean, commit_quota bigint, commit_root text, issuer_token_id text, created_at timestamp, expires_at timestamp);",
		"CREATE TABLE IF NOT EXISTS %s.tokens_by_user (user_id text, id text, PRIMARY KEY(user_id, id));",
		"CREATE TABLE IF NOT EXISTS %s.pending_auth (pubkey text PRIMARY KEY, code text, user_id text, approved boolean, created_at timestamp, expires_at timestamp);",
		"CREATE TABLE IF NOT EXISTS %s.pubkeys (pubkey text PRIMARY KEY, user_id text, name text, algorithm text, created_at timestamp);",
		"CREATE TABLE IF NOT EXISTS %s.pubkeys_by_user (user_id text, pubkey text, PRIMARY KEY(user_id, pubkey));",
		"CREATE TABLE IF NOT EXISTS %s.commits (realm text, root text, title text, created_at timestamp, created_by text, PRIMARY KEY(realm, root));",
		"CREATE TABLE IF NOT EXISTS %s.commits_by_time (realm text, created_at timestamp, root text, title text, created_by text, PRIMARY KEY(realm, created_at, root)) WITH CLUSTERING ORDER BY (created_at DESC, root DESC);",
		"CREATE TABLE IF NOT EXISTS %s.depots (realm text, id text, name text, root text, version bigint, description text, created_at timestamp, updated_at timestamp, PRIMARY KEY(realm, id));",
		// Depot name uniqueness enforced by INSERT IF NOT EXISTS on this table.
		"CREATE TABLE IF NOT EXISTS %s.depot_names (realm text, name text, id text, PRIMARY KEY(realm, name));",
		// Append-only audit history; rows outlive their depot.
		"CREATE TABLE IF NOT EXISTS %s.depot_history (realm text, id text, version bigint, root text, message text, created_at timestamp, PRIMARY KEY((realm, id), version));",
		// Blob bytes, only used when the blob backend is Cassandra.
		"CREATE TABLE IF NOT EXISTS %s.blobs (key text PRIMARY KEY, node blob);",
	}
	for _, stmt := range ddl {
		if err := s.Query(fmt.Sprintf(stmt, config.Keyspace)).Exec(); err != nil {
			return nil, err
		}
	}

	c.Session = s
	connection = &c
	return connection, nil
}

// CloseConnection closes and clears the global connection, if it exists.
func CloseConnection() {
	if connection != nil {
		mux.Lock()
		defer mux.Unlock()
		if connection == nil {
			return
		}
		connection.Session.Close()
		connection = nil
	}
}

func errClosed() error {
	return fmt.Errorf("Cassandra connection is closed, 'call OpenConnection(config) to open it")
}
