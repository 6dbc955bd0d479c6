package inmemory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sharedcode/cascade"
)

func TestIncrementDecrementLifecycle(t *testing.T) {
	ctx := context.Background()
	refs := NewRefCounter()
	key := cascade.NewKey([]byte("node"))

	res, err := refs.Increment(ctx, "usr_a", key, 10, 5)
	if err != nil || res.Count != 1 || !res.WasZeroBefore {
		t.Fatalf("first Increment = %+v, %v", res, err)
	}
	res, err = refs.Increment(ctx, "usr_a", key, 10, 5)
	if err != nil || res.Count != 2 || res.WasZeroBefore {
		t.Fatalf("second Increment = %+v, %v", res, err)
	}

	dec, err := refs.Decrement(ctx, "usr_a", key)
	if err != nil || dec.Count != 1 || dec.BecameZero {
		t.Fatalf("first Decrement = %+v, %v", dec, err)
	}
	dec, err = refs.Decrement(ctx, "usr_a", key)
	if err != nil || dec.Count != 0 || !dec.BecameZero {
		t.Fatalf("second Decrement = %+v, %v", dec, err)
	}
	e, err := refs.Get(ctx, "usr_a", key)
	if err != nil || e == nil || e.GCState != cascade.GCPending {
		t.Fatalf("entry after zero = %+v, %v", e, err)
	}

	// Decrement below zero is silent.
	dec, err = refs.Decrement(ctx, "usr_a", key)
	if err != nil || dec.Count != 0 || dec.BecameZero {
		t.Fatalf("underflow Decrement = %+v, %v", dec, err)
	}

	// A later increment reactivates the entry.
	res, err = refs.Increment(ctx, "usr_a", key, 10, 5)
	if err != nil || res.Count != 1 || !res.WasZeroBefore {
		t.Fatalf("reactivating Increment = %+v, %v", res, err)
	}
	e, _ = refs.Get(ctx, "usr_a", key)
	if e.GCState != cascade.GCActive {
		t.Fatalf("entry not reactivated: %+v", e)
	}
}

func TestDecrementAbsentIsSilent(t *testing.T) {
	ctx := context.Background()
	refs := NewRefCounter()
	dec, err := refs.Decrement(ctx, "usr_a", cascade.NewKey([]byte("never")))
	if err != nil || dec.Count != 0 || dec.BecameZero {
		t.Fatalf("Decrement = %+v, %v", dec, err)
	}
}

func TestFirstSeenAtIsStable(t *testing.T) {
	ctx := context.Background()
	refs := NewRefCounter()
	key := cascade.NewKey([]byte("node"))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	restore := cascade.Now
	defer func() { cascade.Now = restore }()
	cascade.Now = func() time.Time { return base }
	refs.Increment(ctx, "usr_a", key, 1, 1)

	cascade.Now = func() time.Time { return base.Add(time.Hour) }
	refs.Decrement(ctx, "usr_a", key)
	refs.Increment(ctx, "usr_a", key, 1, 1)

	e, _ := refs.Get(ctx, "usr_a", key)
	if !e.FirstSeenAt.Equal(base) {
		t.Fatalf("FirstSeenAt moved: %v", e.FirstSeenAt)
	}
}

func TestCountGlobalSpansRealms(t *testing.T) {
	ctx := context.Background()
	refs := NewRefCounter()
	key := cascade.NewKey([]byte("shared"))

	refs.Increment(ctx, "usr_a", key, 1, 1)
	refs.Increment(ctx, "usr_b", key, 1, 1)
	if n, _ := refs.CountGlobal(ctx, key); n != 2 {
		t.Fatalf("CountGlobal = %d, want 2", n)
	}
	// A pending record still counts; only Delete shrinks the set.
	refs.Decrement(ctx, "usr_b", key)
	if n, _ := refs.CountGlobal(ctx, key); n != 2 {
		t.Fatalf("CountGlobal after decrement = %d, want 2", n)
	}
	refs.Delete(ctx, "usr_b", key)
	if n, _ := refs.CountGlobal(ctx, key); n != 1 {
		t.Fatalf("CountGlobal after delete = %d, want 1", n)
	}
	refs.Delete(ctx, "usr_a", key)
	if n, _ := refs.CountGlobal(ctx, key); n != 0 {
		t.Fatalf("CountGlobal after last delete = %d, want 0", n)
	}
}

func TestListPendingPagesInOrder(t *testing.T) {
	ctx := context.Background()
	refs := NewRefCounter()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	restore := cascade.Now
	defer func() { cascade.Now = restore }()
	for i := 0; i < 5; i++ {
		tick := base.Add(time.Duration(i) * time.Minute)
		cascade.Now = func() time.Time { return tick }
		key := cascade.NewKey([]byte(fmt.Sprintf("node-%d", i)))
		refs.Increment(ctx, "usr_a", key, 1, 1)
		refs.Decrement(ctx, "usr_a", key)
	}

	var got []cascade.RefCountEntry
	cursor := ""
	for {
		page, next, err := refs.ListPending(ctx, base.Add(time.Hour), 2, cursor)
		if err != nil {
			t.Fatalf("ListPending: %v", err)
		}
		got = append(got, page...)
		if next == "" {
			break
		}
		cursor = next
	}
	if len(got) != 5 {
		t.Fatalf("paged %d entries, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].FirstSeenAt.Before(got[i-1].FirstSeenAt) {
			t.Fatal("pages not in FirstSeenAt order")
		}
	}

	// Entries younger than the threshold stay invisible.
	page, _, err := refs.ListPending(ctx, base, 10, "")
	if err != nil || len(page) != 0 {
		t.Fatalf("ListPending(before=base) = %d entries, %v", len(page), err)
	}
}
