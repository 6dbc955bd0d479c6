package fs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sharedcode/cascade"
)

func TestPutGetErase(t *testing.T) {
	ctx := context.Background()
	bs := NewBlobStore(t.TempDir(), DefaultToFilePath)

	ba := []byte("payload")
	key := cascade.NewKey(ba)
	if err := bs.Put(ctx, key, ba); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := bs.Has(ctx, key); err != nil || !ok {
		t.Fatalf("Has = %v, %v", ok, err)
	}
	got, err := bs.Get(ctx, key)
	if err != nil || string(got) != "payload" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	// Duplicate put of identical bytes succeeds.
	if err := bs.Put(ctx, key, ba); err != nil {
		t.Fatalf("duplicate Put: %v", err)
	}

	if err := bs.Erase(ctx, key); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if got, err := bs.Get(ctx, key); err != nil || got != nil {
		t.Fatalf("Get after Erase = %q, %v", got, err)
	}
	// Erasing an absent blob is not an error.
	if err := bs.Erase(ctx, key); err != nil {
		t.Fatalf("Erase absent: %v", err)
	}
}

func TestPutRejectsHashMismatch(t *testing.T) {
	ctx := context.Background()
	bs := NewBlobStore(t.TempDir(), DefaultToFilePath)

	wrong := cascade.NewKey([]byte("other"))
	err := bs.Put(ctx, wrong, []byte("payload"))
	if cascade.CodeOf(err) != cascade.HashMismatch {
		t.Fatalf("code = %v, want HashMismatch", cascade.CodeOf(err))
	}
}

func TestGetAbsentReturnsNil(t *testing.T) {
	ctx := context.Background()
	bs := NewBlobStore(t.TempDir(), DefaultToFilePath)
	got, err := bs.Get(ctx, cascade.NewKey([]byte("never stored")))
	if err != nil || got != nil {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestDefaultToFilePathFansOutOnPrefix(t *testing.T) {
	key := cascade.NewKey([]byte("x"))
	dir := DefaultToFilePath("base", key)
	want := filepath.Join("base", "cas", "sha256", key.Hex()[0:2])
	if dir != want {
		t.Fatalf("DefaultToFilePath = %q, want %q", dir, want)
	}
}
