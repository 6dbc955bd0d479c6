package common

import (
	"context"
	"testing"
	"time"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
)

func TestCommitLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")
	root, ba := encodeChunk(t, "committed content")
	mustPut(t, s, ac, ac.Realm, root, ba)

	commit, err := s.CreateCommit(ctx, ac, ac.Realm, root, "first")
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if commit.Root != root || commit.Title != "first" || commit.CreatedBy != "u1" {
		t.Fatalf("commit = %+v", commit)
	}
	// The commit's edge is the root's only reference.
	if n := refCount(t, s, ac.Realm, root); n != 1 {
		t.Fatalf("refcount after commit = %d, want 1", n)
	}

	if err := s.RetitleCommit(ctx, ac.Realm, root, "renamed"); err != nil {
		t.Fatalf("RetitleCommit: %v", err)
	}
	got, err := s.GetCommit(ctx, ac.Realm, root)
	if err != nil || got.Title != "renamed" {
		t.Fatalf("GetCommit = %+v, %v", got, err)
	}

	commits, next, err := s.ListCommits(ctx, ac.Realm, 0, "")
	if err != nil || len(commits) != 1 || next != "" {
		t.Fatalf("ListCommits = %d entries, next=%q, %v", len(commits), next, err)
	}

	if err := s.DeleteCommit(ctx, ac.Realm, root); err != nil {
		t.Fatalf("DeleteCommit: %v", err)
	}
	// Back to pending; only the protection window holds it now.
	if n := refCount(t, s, ac.Realm, root); n != 0 {
		t.Fatalf("refcount after delete = %d, want 0", n)
	}
	if _, err := s.GetCommit(ctx, ac.Realm, root); cascade.CodeOf(err) != cascade.NotFound {
		t.Fatalf("code = %v, want NotFound", cascade.CodeOf(err))
	}
}

func TestCommitUnknownRootIsNotFound(t *testing.T) {
	s := newTestService()
	ac := userContext("u1")
	root, _ := encodeChunk(t, "never stored")

	_, err := s.CreateCommit(context.Background(), ac, ac.Realm, root, "")
	if cascade.CodeOf(err) != cascade.NotFound {
		t.Fatalf("code = %v, want NotFound", cascade.CodeOf(err))
	}
}

func TestListCommitsPagesNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	restore := cascade.Now
	defer func() { cascade.Now = restore }()
	payloads := []string{"c0", "c1", "c2"}
	for i, p := range payloads {
		tick := base.Add(time.Duration(i) * time.Minute)
		cascade.Now = func() time.Time { return tick }
		root, ba := encodeChunk(t, p)
		mustPut(t, s, ac, ac.Realm, root, ba)
		if _, err := s.CreateCommit(ctx, ac, ac.Realm, root, p); err != nil {
			t.Fatalf("CreateCommit(%s): %v", p, err)
		}
	}

	var titles []string
	cursor := ""
	for {
		page, next, err := s.ListCommits(ctx, ac.Realm, 2, cursor)
		if err != nil {
			t.Fatalf("ListCommits: %v", err)
		}
		for _, c := range page {
			titles = append(titles, c.Title)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(titles) != 3 || titles[0] != "c2" || titles[2] != "c0" {
		t.Fatalf("titles = %v, want newest first", titles)
	}
}

func TestDuplicateCommitIsConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")
	root, ba := encodeChunk(t, "pinned once")
	mustPut(t, s, ac, ac.Realm, root, ba)

	if _, err := s.CreateCommit(ctx, ac, ac.Realm, root, "first"); err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	_, err := s.CreateCommit(ctx, ac, ac.Realm, root, "second")
	if cascade.CodeOf(err) != cascade.Conflict {
		t.Fatalf("code = %v, want Conflict", cascade.CodeOf(err))
	}
	// The rejected commit left no extra edge behind.
	if n := refCount(t, s, ac.Realm, root); n != 1 {
		t.Fatalf("refcount after duplicate = %d, want 1", n)
	}
	if err := s.DeleteCommit(ctx, ac.Realm, root); err != nil {
		t.Fatalf("DeleteCommit: %v", err)
	}
	if n := refCount(t, s, ac.Realm, root); n != 0 {
		t.Fatalf("refcount after delete = %d, want 0", n)
	}
}

func TestReadOnlyTicketCannotCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	owner := userContext("u1")
	root, ba := encodeChunk(t, "shared read")
	mustPut(t, s, owner, owner.Realm, root, ba)

	tok, err := s.IssueTicket(ctx, owner, []cascade.Key{root}, nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueTicket: %v", err)
	}
	tac := auth.Context{
		Realm:       tok.Realm,
		TokenID:     tok.ID,
		CanRead:     true,
		AllowedKeys: tok.ReadScope,
		Ticket:      &tok,
	}

	_, err = s.CreateCommit(ctx, tac, tac.Realm, root, "overreach")
	if cascade.CodeOf(err) != cascade.Forbidden {
		t.Fatalf("code = %v, want Forbidden", cascade.CodeOf(err))
	}
	if n := refCount(t, s, owner.Realm, root); n != 0 {
		t.Fatalf("refcount after refused commit = %d, want 0", n)
	}
}

func TestTicketSingleCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	issuer := userContext("u1")

	tok, err := s.IssueTicket(ctx, issuer, nil, &cascade.CommitGrant{}, time.Hour)
	if err != nil {
		t.Fatalf("IssueTicket: %v", err)
	}
	tac := auth.Context{
		Realm:    tok.Realm,
		TokenID:  tok.ID,
		CanRead:  true,
		CanWrite: true,
		Ticket:   &tok,
	}

	root, ba := encodeChunk(t, "delegated upload")
	mustPut(t, s, tac, tac.Realm, root, ba)
	if _, err := s.CreateCommit(ctx, tac, tac.Realm, root, "done"); err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	if n := refCount(t, s, tac.Realm, root); n != 1 {
		t.Fatalf("refcount after ticket commit = %d, want 1", n)
	}

	// The grant is single-use: a second commit reverts and fails.
	root2, ba2 := encodeChunk(t, "second upload")
	mustPut(t, s, issuer, issuer.Realm, root2, ba2)
	_, err = s.CreateCommit(ctx, tac, tac.Realm, root2, "again")
	if cascade.CodeOf(err) != cascade.Forbidden {
		t.Fatalf("code = %v, want Forbidden", cascade.CodeOf(err))
	}
	if n := refCount(t, s, tac.Realm, root2); n != 0 {
		t.Fatalf("loser's ref not reverted: count = %d, want 0", n)
	}
	if _, err := s.GetCommit(ctx, tac.Realm, root2); cascade.CodeOf(err) != cascade.NotFound {
		t.Fatal("loser's commit record not reverted")
	}

	// The stored ticket records the consuming root.
	stored, err := s.stores.Tokens.Get(ctx, tok.ID)
	if err != nil || stored == nil || stored.Commit == nil || stored.Commit.Root != root {
		t.Fatalf("stored ticket = %+v, %v", stored, err)
	}
}
