package cascade

import (
	"time"
)

// NodeKind discriminates the four node framings stored in the CAS.
type NodeKind byte

const (
	// NodeUnknown is the zero value; never stored.
	NodeUnknown NodeKind = iota
	// NodeChunk is a raw payload leaf.
	NodeChunk
	// NodeInlineFile is a payload leaf carrying its original MIME type.
	NodeInlineFile
	// NodeFile is an ordered list of chunk-or-file children plus a MIME type.
	NodeFile
	// NodeCollection is an ordered list of (name, child digest) pairs.
	NodeCollection
)

func (k NodeKind) String() string {
	switch k {
	case NodeChunk:
		return "chunk"
	case NodeInlineFile:
		return "inline-file"
	case NodeFile:
		return "file"
	case NodeCollection:
		return "collection"
	}
	return "unknown"
}

// GCState tracks whether a ref record is live or awaiting collection.
type GCState int

const (
	// GCActive means the record has at least one incoming edge.
	GCActive GCState = iota
	// GCPending means the count reached zero; the entry waits out the protection window.
	GCPending
)

// OwnershipEntry records that a key is visible in a realm. Its existence
// means the realm may read the blob and the blob is rooted in the realm's
// lifetime graph.
type OwnershipEntry struct {
	Realm       string    `json:"realm"`
	Key         Key       `json:"key"`
	Kind        NodeKind  `json:"kind"`
	ContentType string    `json:"contentType"`
	ByteSize    int64     `json:"byteSize"`
	CreatedAt   time.Time `json:"createdAt"`
	CreatedBy   string    `json:"createdBy"`
}

// RefCountEntry is the per-(realm,key) reference record. Count is the number
// of direct incoming edges within the realm: commits, depot roots and parent
// nodes. FirstSeenAt is set on creation and never changed.
type RefCountEntry struct {
	Realm        string    `json:"realm"`
	Key          Key       `json:"key"`
	Count        int64     `json:"count"`
	PhysicalSize int64     `json:"physicalSize"`
	LogicalSize  int64     `json:"logicalSize"`
	GCState      GCState   `json:"gcState"`
	FirstSeenAt  time.Time `json:"firstSeenAt"`
}

// IncrementResult is returned by RefCounter.Increment.
type IncrementResult struct {
	Count         int64
	WasZeroBefore bool
}

// DecrementResult is returned by RefCounter.Decrement.
type DecrementResult struct {
	Count      int64
	BecameZero bool
}

// UsageSummary aggregates a realm's footprint. It changes only when a node
// becomes first-seen or last-gone in the realm.
type UsageSummary struct {
	Realm         string    `json:"realm"`
	PhysicalBytes int64     `json:"physicalBytes"`
	LogicalBytes  int64     `json:"logicalBytes"`
	NodeCount     int64     `json:"nodeCount"`
	// QuotaLimit of 0 means unlimited.
	QuotaLimit int64     `json:"quotaLimit"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Commit pins exactly one root key in its realm and holds one reference in
// the RefCounter for that key.
type Commit struct {
	Realm     string    `json:"realm"`
	Root      Key       `json:"root"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy"`
}

// Depot is a named, versioned, mutable pointer to a root within a realm.
// It holds exactly one reference to its current root.
type Depot struct {
	Realm       string    `json:"realm"`
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Root        Key       `json:"root"`
	Version     int64     `json:"version"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ReservedDepotName is auto-created per realm on first use and cannot be deleted.
const ReservedDepotName = "main"

// DepotVersion is one append-only history entry of a depot. History entries
// are audit-only and are never treated as live references.
type DepotVersion struct {
	Version   int64     `json:"version"`
	Root      Key       `json:"root"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenKind discriminates the stored token variants.
type TokenKind int

const (
	TokenUnknown TokenKind = iota
	// TokenUser is a plain bearer token for a user.
	TokenUser
	// TokenAgent is a long-lived user surrogate.
	TokenAgent
	// TokenTicket is a bounded delegated credential: realm, optional read
	// scope, optional single-use commit permission with quota.
	TokenTicket
)

// CommitGrant is a ticket's commit permission. Root stays empty until the
// ticket's single commit consumes the grant.
type CommitGrant struct {
	Quota int64 `json:"quota,omitempty"`
	Root  Key   `json:"root,omitempty"`
}

// Token is the stored form of user tokens, agent tokens and tickets.
type Token struct {
	ID            string       `json:"id"`
	Kind          TokenKind    `json:"kind"`
	UserID        string       `json:"userId"`
	Name          string       `json:"name,omitempty"`
	Description   string       `json:"description,omitempty"`
	Realm         string       `json:"realm,omitempty"`
	ReadScope     []Key        `json:"readScope,omitempty"`
	Commit        *CommitGrant `json:"commit,omitempty"`
	IssuerTokenID string       `json:"issuerTokenId,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	ExpiresAt     time.Time    `json:"expiresAt"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// PendingAuth is a short-lived public-key enrolment candidate. The client
// polls until a signed-in user approves the verification code.
type PendingAuth struct {
	Pubkey    string    `json:"pubkey"`
	Code      string    `json:"code"`
	UserID    string    `json:"userId,omitempty"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the enrolment candidate lapsed.
func (p PendingAuth) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.After(p.ExpiresAt)
}

// AuthorizedPubkey maps an enrolled public key to its user.
type AuthorizedPubkey struct {
	Pubkey    string    `json:"pubkey"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name,omitempty"`
	Algorithm string    `json:"algorithm"`
	CreatedAt time.Time `json:"createdAt"`
}

// RealmOfUser formats the canonical realm of a user.
func RealmOfUser(userID string) string {
	return "usr_" + userID
}

// Now returns the current time and can be "synthesized" by tests.
var Now = time.Now
