package cascade

import (
	"context"
	"time"
)

// BlobStore specifies the backend store for content-addressed bytes. Blobs
// are immutable; the only writer after Put is the garbage collector's Erase.
type BlobStore interface {
	// Has reports whether the blob exists. Implementations may cache
	// positive answers but must never cache negatives.
	Has(ctx context.Context, key Key) (bool, error)
	// Get returns the blob bytes, or nil when absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	// Put stores ba under key. It fails with HashMismatch when key is not
	// the SHA-256 of ba, and is otherwise idempotent: concurrent duplicate
	// puts must both succeed without corruption.
	Put(ctx context.Context, key Key, ba []byte) error
	// Erase removes the blob. Used only by GC; absence is not an error.
	Erase(ctx context.Context, key Key) error
}

// OwnershipLedger records which keys are visible in which realm.
type OwnershipLedger interface {
	// Add is idempotent on (realm,key).
	Add(ctx context.Context, entry OwnershipEntry) error
	Has(ctx context.Context, realm string, key Key) (bool, error)
	Get(ctx context.Context, realm string, key Key) (*OwnershipEntry, error)
	// Check partitions keys into present and missing for dedup-aware upload planning.
	Check(ctx context.Context, realm string, keys []Key) (present []Key, missing []Key, err error)
	// List pages entries newest-first. An empty cursor starts from the top;
	// the returned cursor is empty when the listing is exhausted.
	List(ctx context.Context, realm string, limit int, cursor string) ([]OwnershipEntry, string, error)
	// Remove is called by GC only.
	Remove(ctx context.Context, realm string, key Key) error
}

// RefCounter maintains the per-(realm,key) reference records. Increment and
// Decrement are linearisable with respect to concurrent callers for the same
// (realm,key); cross-realm operations need not serialise.
type RefCounter interface {
	// Increment creates the record at count=1 with the given sizes and
	// GCActive state if absent, otherwise atomically adds 1 and reactivates.
	// FirstSeenAt is set on creation and never changed.
	Increment(ctx context.Context, realm string, key Key, physicalSize, logicalSize int64) (IncrementResult, error)
	// Decrement fails silently if absent or already 0; on a 0 transition the
	// record flips to GCPending.
	Decrement(ctx context.Context, realm string, key Key) (DecrementResult, error)
	Get(ctx context.Context, realm string, key Key) (*RefCountEntry, error)
	// ListPending returns entries with GCPending state and FirstSeenAt before
	// the given time, ordered by FirstSeenAt ascending (stable). The cursor
	// encodes (firstSeenAt, realm, key); empty result cursor means done.
	ListPending(ctx context.Context, before time.Time, limit int, cursor string) ([]RefCountEntry, string, error)
	// CountGlobal returns the number of realms holding a ref record for the
	// key, pending records included. A pending record still pins the blob
	// until that realm's GC reclaims it, so erase decisions count records,
	// not live edges.
	CountGlobal(ctx context.Context, key Key) (int, error)
	// Delete removes the record entirely. Called by GC only.
	Delete(ctx context.Context, realm string, key Key) error
}

// UsageMeter aggregates a realm's physical/logical bytes and node count.
type UsageMeter interface {
	Get(ctx context.Context, realm string) (UsageSummary, error)
	// Apply atomically adds the deltas, creating the summary if absent.
	Apply(ctx context.Context, realm string, deltaPhysical, deltaLogical, deltaNodes int64) error
	// SetQuota sets the realm byte budget; 0 means unlimited.
	SetQuota(ctx context.Context, realm string, bytes int64) error
	// CheckQuota reports whether adding wouldAddBytes stays within quota,
	// along with the current snapshot.
	CheckQuota(ctx context.Context, realm string, wouldAddBytes int64) (bool, UsageSummary, error)
}

// TokenStore persists user tokens, agent tokens and tickets.
type TokenStore interface {
	CreateUserToken(ctx context.Context, userID string, ttl time.Duration) (Token, error)
	CreateAgentToken(ctx context.Context, userID, name, description string, ttl time.Duration) (Token, error)
	CreateTicket(ctx context.Context, realm, issuerTokenID string, readScope []Key, commit *CommitGrant, ttl time.Duration) (Token, error)
	// Get returns nil for absent tokens. Expired records are still returned
	// so callers can distinguish expired from unknown; they are reaped by
	// Revoke or opportunistically.
	Get(ctx context.Context, tokenID string) (*Token, error)
	Revoke(ctx context.Context, tokenID string) error
	// MarkTicketCommitted is an atomic compare-and-set recording the ticket's
	// single commit; it returns false when the ticket already committed.
	MarkTicketCommitted(ctx context.Context, ticketID string, root Key) (bool, error)
	// VerifyOwnership reports whether the token belongs to the user.
	VerifyOwnership(ctx context.Context, tokenID, userID string) (bool, error)
	// ListByUser returns the user's live agent tokens.
	ListByUser(ctx context.Context, userID string) ([]Token, error)
}

// PendingAuthStore persists public-key enrolment candidates. Expiry is
// enforced on read.
type PendingAuthStore interface {
	Create(ctx context.Context, pa PendingAuth) error
	Get(ctx context.Context, pubkey string) (*PendingAuth, error)
	// Approve marks the candidate approved by userID.
	Approve(ctx context.Context, pubkey, userID string) error
	// ValidateCode reports whether code matches the candidate's verification code.
	ValidateCode(ctx context.Context, pubkey, code string) (bool, error)
	Delete(ctx context.Context, pubkey string) error
}

// PubkeyStore persists the enrolled public keys.
type PubkeyStore interface {
	// Lookup returns nil when the pubkey is not enrolled.
	Lookup(ctx context.Context, pubkey string) (*AuthorizedPubkey, error)
	Store(ctx context.Context, pk AuthorizedPubkey) error
	Revoke(ctx context.Context, pubkey string) error
	ListByUser(ctx context.Context, userID string) ([]AuthorizedPubkey, error)
}

// CommitStore persists the per-realm commit records.
type CommitStore interface {
	Create(ctx context.Context, c Commit) error
	// Get returns nil when the commit is absent.
	Get(ctx context.Context, realm string, root Key) (*Commit, error)
	// SetTitle updates only the metadata; no ref changes.
	SetTitle(ctx context.Context, realm string, root Key, title string) error
	Delete(ctx context.Context, realm string, root Key) error
	// List pages commits newest-first.
	List(ctx context.Context, realm string, limit int, cursor string) ([]Commit, string, error)
}

// DepotStore persists depots and their append-only history.
type DepotStore interface {
	// Create fails with Conflict when the name already exists in the realm.
	// The depot's first history entry is recorded alongside.
	Create(ctx context.Context, d Depot) error
	Get(ctx context.Context, realm, id string) (*Depot, error)
	GetByName(ctx context.Context, realm, name string) (*Depot, error)
	List(ctx context.Context, realm string) ([]Depot, error)
	// SwapRoot is the optimistic CAS on version: it swaps the root, bumps the
	// version to expectVersion+1 and appends the history entry, or fails with
	// Conflict when another writer won. The returned depot is the new state.
	SwapRoot(ctx context.Context, realm, id string, expectVersion int64, newRoot Key, message string) (*Depot, error)
	History(ctx context.Context, realm, id string) ([]DepotVersion, error)
	// GetVersion returns nil when the version is not in history.
	GetVersion(ctx context.Context, realm, id string, version int64) (*DepotVersion, error)
	// Delete removes the depot record. History entries may remain for audit.
	Delete(ctx context.Context, realm, id string) error
}

// Cache is the L2 (cross-process) cache contract, satisfied by the redis
// package and its mock.
type Cache interface {
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Get(ctx context.Context, key string) (bool, string, error)
	SetStruct(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	GetStruct(ctx context.Context, key string, target interface{}) (bool, error)
	Delete(ctx context.Context, keys []string) (bool, error)
	Ping(ctx context.Context) error
}
