package common

import (
	"context"
	"testing"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/node"
)

func TestEnsureMainDepotBootstraps(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")

	d, err := s.EnsureMainDepot(ctx, ac.Realm, ac.UserID)
	if err != nil {
		t.Fatalf("EnsureMainDepot: %v", err)
	}
	if d.Name != cascade.ReservedDepotName || d.Version != 1 || d.Root != node.EmptyCollectionKey {
		t.Fatalf("main depot = %+v", d)
	}
	// The depot holds the only live reference to the empty collection.
	if n := refCount(t, s, ac.Realm, node.EmptyCollectionKey); n != 1 {
		t.Fatalf("empty collection refcount = %d, want 1", n)
	}

	// Idempotent: a second call returns the same depot.
	again, err := s.EnsureMainDepot(ctx, ac.Realm, ac.UserID)
	if err != nil || again.ID != d.ID {
		t.Fatalf("second EnsureMainDepot = %+v, %v", again, err)
	}
	if n := refCount(t, s, ac.Realm, node.EmptyCollectionKey); n != 1 {
		t.Fatalf("refcount after re-ensure = %d, want 1", n)
	}
}

func TestCreateDepotRejectsReservedAndDuplicateNames(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")

	if _, err := s.CreateDepot(ctx, ac, ac.Realm, cascade.ReservedDepotName, ""); cascade.CodeOf(err) != cascade.Conflict {
		t.Fatalf("reserved name: code = %v, want Conflict", cascade.CodeOf(err))
	}
	if _, err := s.CreateDepot(ctx, ac, ac.Realm, "", ""); cascade.CodeOf(err) != cascade.MalformedRequest {
		t.Fatalf("empty name: code = %v, want MalformedRequest", cascade.CodeOf(err))
	}

	if _, err := s.CreateDepot(ctx, ac, ac.Realm, "work", "scratch space"); err != nil {
		t.Fatalf("CreateDepot: %v", err)
	}
	if _, err := s.CreateDepot(ctx, ac, ac.Realm, "work", ""); cascade.CodeOf(err) != cascade.Conflict {
		t.Fatalf("duplicate name: code = %v, want Conflict", cascade.CodeOf(err))
	}
	// The failed create must not leak a reference.
	if n := refCount(t, s, ac.Realm, node.EmptyCollectionKey); n != 1 {
		t.Fatalf("refcount after duplicate create = %d, want 1", n)
	}
}

func TestUpdateDepotRootMovesReferences(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")
	d, err := s.CreateDepot(ctx, ac, ac.Realm, "work", "")
	if err != nil {
		t.Fatalf("CreateDepot: %v", err)
	}
	root, ba := encodeChunk(t, "new root")
	mustPut(t, s, ac, ac.Realm, root, ba)

	updated, err := s.UpdateDepotRoot(ctx, ac, ac.Realm, d.ID, root, "point at work")
	if err != nil {
		t.Fatalf("UpdateDepotRoot: %v", err)
	}
	if updated.Version != 2 || updated.Root != root {
		t.Fatalf("updated depot = %+v", updated)
	}
	// The depot edge is the new root's only reference.
	if n := refCount(t, s, ac.Realm, root); n != 1 {
		t.Fatalf("new root refcount = %d, want 1", n)
	}
	if n := refCount(t, s, ac.Realm, node.EmptyCollectionKey); n != 0 {
		t.Fatalf("old root refcount = %d, want 0", n)
	}

	// An unowned root is rejected before any ref moves.
	foreign, _ := encodeChunk(t, "not owned here")
	if _, err := s.UpdateDepotRoot(ctx, ac, ac.Realm, d.ID, foreign, ""); cascade.CodeOf(err) != cascade.NotFound {
		t.Fatalf("code = %v, want NotFound", cascade.CodeOf(err))
	}
}

func TestRollbackDepot(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")
	d, err := s.CreateDepot(ctx, ac, ac.Realm, "work", "")
	if err != nil {
		t.Fatalf("CreateDepot: %v", err)
	}
	root, ba := encodeChunk(t, "v2 root")
	mustPut(t, s, ac, ac.Realm, root, ba)
	if _, err := s.UpdateDepotRoot(ctx, ac, ac.Realm, d.ID, root, "advance"); err != nil {
		t.Fatalf("UpdateDepotRoot: %v", err)
	}

	// Rollback to v1 appends a new version pointing at the old root.
	back, err := s.RollbackDepot(ctx, ac, ac.Realm, d.ID, 1)
	if err != nil {
		t.Fatalf("RollbackDepot: %v", err)
	}
	if back.Version != 3 || back.Root != node.EmptyCollectionKey {
		t.Fatalf("rolled-back depot = %+v", back)
	}

	// Rolling back to the current version is a no-op.
	same, err := s.RollbackDepot(ctx, ac, ac.Realm, d.ID, 3)
	if err != nil || same.Version != 3 {
		t.Fatalf("no-op rollback = %+v, %v", same, err)
	}

	if _, err := s.RollbackDepot(ctx, ac, ac.Realm, d.ID, 99); cascade.CodeOf(err) != cascade.NotFound {
		t.Fatalf("code = %v, want NotFound", cascade.CodeOf(err))
	}

	history, err := s.DepotHistory(ctx, ac.Realm, d.ID)
	if err != nil || len(history) != 3 {
		t.Fatalf("history = %d entries, %v", len(history), err)
	}
}

func TestDeleteDepot(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")

	main, err := s.EnsureMainDepot(ctx, ac.Realm, ac.UserID)
	if err != nil {
		t.Fatalf("EnsureMainDepot: %v", err)
	}
	if err := s.DeleteDepot(ctx, ac, ac.Realm, main.ID); cascade.CodeOf(err) != cascade.Forbidden {
		t.Fatalf("deleting main: code = %v, want Forbidden", cascade.CodeOf(err))
	}

	d, err := s.CreateDepot(ctx, ac, ac.Realm, "scratch", "")
	if err != nil {
		t.Fatalf("CreateDepot: %v", err)
	}
	if err := s.DeleteDepot(ctx, ac, ac.Realm, d.ID); err != nil {
		t.Fatalf("DeleteDepot: %v", err)
	}
	if _, err := s.GetDepot(ctx, ac.Realm, d.ID); cascade.CodeOf(err) != cascade.NotFound {
		t.Fatalf("code = %v, want NotFound", cascade.CodeOf(err))
	}
	// Main still holds its reference; scratch's is gone.
	if n := refCount(t, s, ac.Realm, node.EmptyCollectionKey); n != 1 {
		t.Fatalf("refcount after delete = %d, want 1", n)
	}
}
