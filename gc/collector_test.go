package gc

import (
	"context"
	"testing"
	"time"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
	"github.com/sharedcode/cascade/common"
	"github.com/sharedcode/cascade/inmemory"
	"github.com/sharedcode/cascade/node"
)

type harness struct {
	cfg    cascade.Config
	stores common.Stores
	svc    *common.Service
	ac     auth.Context
}

func newHarness(window time.Duration) *harness {
	cfg := cascade.DefaultConfig()
	cfg.ProtectionWindow = window
	stores := common.Stores{
		Blobs:     inmemory.NewBlobStore(),
		Ownership: inmemory.NewOwnershipLedger(),
		Refs:      inmemory.NewRefCounter(),
		Usage:     inmemory.NewUsageMeter(),
		Tokens:    inmemory.NewTokenStore(),
		Commits:   inmemory.NewCommitStore(),
		Depots:    inmemory.NewDepotStore(),
	}
	return &harness{
		cfg:    cfg,
		stores: stores,
		svc:    common.NewService(cfg, stores),
		ac: auth.Context{
			UserID:         "u1",
			Realm:          cascade.RealmOfUser("u1"),
			CanRead:        true,
			CanWrite:       true,
			CanIssueTicket: true,
		},
	}
}

func (h *harness) collector() *Collector {
	return NewCollector(h.cfg, h.stores.Blobs, h.stores.Ownership, h.stores.Refs, h.stores.Usage)
}

func (h *harness) put(t *testing.T, key cascade.Key, ba []byte) {
	t.Helper()
	if _, err := h.svc.PutNode(context.Background(), h.ac, h.ac.Realm, key, ba, ""); err != nil {
		t.Fatalf("PutNode(%s): %v", key, err)
	}
}

func chunk(t *testing.T, payload string) (cascade.Key, []byte) {
	t.Helper()
	ba, err := node.Encode(node.Node{Kind: cascade.NodeChunk, Payload: []byte(payload)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return cascade.NewKey(ba), ba
}

func file(t *testing.T, size int64, children ...cascade.Key) (cascade.Key, []byte) {
	t.Helper()
	digests := make([][32]byte, 0, len(children))
	for _, c := range children {
		d, err := c.Digest()
		if err != nil {
			t.Fatalf("Digest: %v", err)
		}
		digests = append(digests, d)
	}
	ba, err := node.Encode(node.Node{Kind: cascade.NodeFile, Size: size, Children: digests})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return cascade.NewKey(ba), ba
}

// Deleting the only commit of a file lets GC cascade through the whole tree
// over successive runs: the parent is reclaimed first, its child decrements
// make the leaves pending, and the next run reclaims those.
func TestCascadingReclaim(t *testing.T) {
	ctx := context.Background()
	h := newHarness(0)
	c1, ba1 := chunk(t, "one")
	c2, ba2 := chunk(t, "two")
	f, fba := file(t, 6, c1, c2)
	h.put(t, c1, ba1)
	h.put(t, c2, ba2)
	h.put(t, f, fba)

	if _, err := h.svc.CreateCommit(ctx, h.ac, h.ac.Realm, f, "pin"); err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if err := h.svc.DeleteCommit(ctx, h.ac.Realm, f); err != nil {
		t.Fatalf("DeleteCommit: %v", err)
	}

	col := h.collector()
	// First run: only the file's direct record is past-window pending.
	stats, err := col.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Reclaimed != 1 || stats.Erased != 1 || stats.Failed != 0 {
		t.Fatalf("first run stats = %+v", stats)
	}
	if ba, _ := h.stores.Blobs.Get(ctx, f); ba != nil {
		t.Fatal("file blob not erased")
	}
	// The file's put-edge on each chunk is gone now; they pend.
	if ba, _ := h.stores.Blobs.Get(ctx, c1); ba == nil {
		t.Fatal("chunk erased before its own window")
	}

	stats, err = col.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if stats.Reclaimed != 2 || stats.Erased != 2 {
		t.Fatalf("second run stats = %+v", stats)
	}
	for _, k := range []cascade.Key{c1, c2} {
		if ba, _ := h.stores.Blobs.Get(ctx, k); ba != nil {
			t.Fatalf("chunk %s not erased", k)
		}
		if e, _ := h.stores.Ownership.Get(ctx, h.ac.Realm, k); e != nil {
			t.Fatalf("ownership of %s not removed", k)
		}
	}
	u, _ := h.svc.Usage(ctx, h.ac.Realm)
	if u.PhysicalBytes != 0 || u.LogicalBytes != 0 || u.NodeCount != 0 {
		t.Fatalf("usage not drained: %+v", u)
	}
}

func TestProtectionWindowHoldsRecentEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(72 * time.Hour)
	key, ba := chunk(t, "protected")
	// An uncommitted upload pends immediately; the window is all that holds it.
	h.put(t, key, ba)

	stats, err := h.collector().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Scanned != 0 {
		t.Fatalf("stats = %+v, want nothing scanned", stats)
	}
	if got, _ := h.stores.Blobs.Get(ctx, key); got == nil {
		t.Fatal("blob erased inside the protection window")
	}

	// Once the window has passed, the entry is eligible.
	restore := cascade.Now
	cascade.Now = func() time.Time { return restore().Add(73 * time.Hour) }
	defer func() { cascade.Now = restore }()
	stats, err = h.collector().Run(ctx)
	if err != nil {
		t.Fatalf("Run after window: %v", err)
	}
	if stats.Reclaimed != 1 || stats.Erased != 1 {
		t.Fatalf("stats after window = %+v", stats)
	}
}

func TestBlobSurvivesWhileAnotherRealmHoldsIt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(0)
	key, ba := chunk(t, "shared")
	h.put(t, key, ba)

	other := auth.Context{UserID: "u2", Realm: cascade.RealmOfUser("u2"), CanRead: true, CanWrite: true}
	if _, err := h.svc.PutNode(ctx, other, other.Realm, key, ba, ""); err != nil {
		t.Fatalf("PutNode in second realm: %v", err)
	}
	// u2 pins its copy with a commit; u1's uncommitted record pends.
	if _, err := h.svc.CreateCommit(ctx, other, other.Realm, key, "pin"); err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}

	stats, err := h.collector().Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Reclaimed != 1 || stats.Erased != 0 {
		t.Fatalf("stats = %+v, want reclaim without erase", stats)
	}
	if got, _ := h.stores.Blobs.Get(ctx, key); got == nil {
		t.Fatal("blob erased while another realm references it")
	}
	// u1's view is gone; u2's is intact.
	if e, _ := h.stores.Ownership.Get(ctx, h.ac.Realm, key); e != nil {
		t.Fatal("u1 ownership not removed")
	}
	if e, _ := h.stores.Ownership.Get(ctx, other.Realm, key); e == nil {
		t.Fatal("u2 ownership removed")
	}
}
