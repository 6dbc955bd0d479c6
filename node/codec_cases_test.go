package node

import (
	"context"
	"testing"

	"github.com/sharedcode/cascade"
)

func digestOf(ba []byte) [32]byte {
	k := cascade.NewKey(ba)
	d, _ := k.Digest()
	return d
}

func TestChunkRoundTrip(t *testing.T) {
	ba, err := Encode(Node{Kind: cascade.NodeChunk, Payload: []byte("hello")})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if kind, err := QuickValidate(ba); err != nil || kind != cascade.NodeChunk {
		t.Fatalf("QuickValidate: kind=%v err=%v", kind, err)
	}
	n, err := Decode(ba)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n.Size != 5 || string(n.Payload) != "hello" {
		t.Fatalf("decoded chunk mismatch: size=%d payload=%q", n.Size, n.Payload)
	}
	if n.LogicalSize() != 5 {
		t.Fatalf("chunk logical size = %d, want 5", n.LogicalSize())
	}
}

func TestInlineFileRoundTrip(t *testing.T) {
	in := Node{Kind: cascade.NodeInlineFile, ContentType: "text/plain", Payload: []byte("abc")}
	ba, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n, err := Decode(ba)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if n.ContentType != "text/plain" || string(n.Payload) != "abc" || n.Size != 3 {
		t.Fatalf("decoded inline-file mismatch: %+v", n)
	}
}

func TestFileRoundTrip(t *testing.T) {
	c1 := digestOf([]byte("one"))
	c2 := digestOf([]byte("two"))
	in := Node{Kind: cascade.NodeFile, Size: 6, ContentType: "application/pdf", Children: [][32]byte{c1, c2}}
	ba, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n, err := Decode(ba)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(n.Children) != 2 || n.Children[0] != c1 || n.Children[1] != c2 {
		t.Fatalf("decoded children mismatch")
	}
	if n.Size != 6 || n.ContentType != "application/pdf" {
		t.Fatalf("decoded file header mismatch: %+v", n)
	}
	if n.LogicalSize() != 0 {
		t.Fatalf("file logical size = %d, want 0", n.LogicalSize())
	}
	keys := n.ChildKeys()
	if len(keys) != 2 || keys[0] != cascade.KeyFromDigest(c1) {
		t.Fatalf("ChildKeys mismatch: %v", keys)
	}
}

func TestCollectionRoundTripPreservesOrder(t *testing.T) {
	in := Node{Kind: cascade.NodeCollection, Size: 9, Entries: []Entry{
		{Name: "zeta", Digest: digestOf([]byte("z"))},
		{Name: "alpha", Digest: digestOf([]byte("a"))},
	}}
	ba, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	n, err := Decode(ba)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(n.Entries) != 2 || n.Entries[0].Name != "zeta" || n.Entries[1].Name != "alpha" {
		t.Fatalf("entry order not stable: %+v", n.Entries)
	}
	// Re-encode must be byte-identical (stable per encode).
	ba2, err := Encode(n)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if string(ba) != string(ba2) {
		t.Fatalf("encode is not stable")
	}
}

func TestDecodeRejectsBadFraming(t *testing.T) {
	good, _ := Encode(Node{Kind: cascade.NodeChunk, Payload: []byte("x")})
	cases := map[string][]byte{
		"empty":          nil,
		"short header":   good[:5],
		"bad magic":      append([]byte{0x00, 0x00}, good[2:]...),
		"bad kind":       append([]byte{0xCA, 0x5C, 0x77}, good[3:]...),
		"truncated body": good[:len(good)-1],
	}
	for name, ba := range cases {
		if _, err := Decode(ba); err == nil {
			t.Errorf("%s: Decode accepted malformed input", name)
		} else if cascade.CodeOf(err) != cascade.MalformedNode {
			t.Errorf("%s: code = %v, want MalformedNode", name, cascade.CodeOf(err))
		}
	}
}

func TestCollectionRejectsDuplicateAndBadNames(t *testing.T) {
	d := digestOf([]byte("x"))
	if _, err := Encode(Node{Kind: cascade.NodeCollection, Entries: []Entry{
		{Name: "a", Digest: d}, {Name: "a", Digest: d},
	}}); err == nil {
		t.Error("duplicate names accepted")
	}
	if _, err := Encode(Node{Kind: cascade.NodeCollection, Entries: []Entry{
		{Name: "", Digest: d},
	}}); err == nil {
		t.Error("empty name accepted")
	}
	if _, err := Encode(Node{Kind: cascade.NodeCollection, Entries: []Entry{
		{Name: string([]byte{0xff, 0xfe}), Digest: d},
	}}); err == nil {
		t.Error("invalid UTF-8 name accepted")
	}
	long := make([]byte, MaxNameBytes+1)
	for i := range long {
		long[i] = 'n'
	}
	if _, err := Encode(Node{Kind: cascade.NodeCollection, Entries: []Entry{
		{Name: string(long), Digest: d},
	}}); err == nil {
		t.Error("over-long name accepted")
	}
}

func TestValidateHashMismatch(t *testing.T) {
	ba, _ := Encode(Node{Kind: cascade.NodeChunk, Payload: []byte("hello")})
	wrong := cascade.NewKey([]byte("other"))
	_, err := Validate(context.Background(), ba, wrong, nil, nil)
	if cascade.CodeOf(err) != cascade.HashMismatch {
		t.Fatalf("code = %v, want HashMismatch", cascade.CodeOf(err))
	}
}

func TestValidateMissingChildren(t *testing.T) {
	ctx := context.Background()
	present := digestOf([]byte("present"))
	absent := digestOf([]byte("absent"))
	ba, _ := Encode(Node{Kind: cascade.NodeFile, Size: 7, Children: [][32]byte{present, absent}})
	hasChild := func(ctx context.Context, k cascade.Key) (bool, error) {
		return k == cascade.KeyFromDigest(present), nil
	}
	_, err := Validate(ctx, ba, cascade.NewKey(ba), hasChild, nil)
	if cascade.CodeOf(err) != cascade.MissingChildren {
		t.Fatalf("code = %v, want MissingChildren", cascade.CodeOf(err))
	}
	missing := MissingKeys(err)
	if len(missing) != 1 || missing[0] != cascade.KeyFromDigest(absent) {
		t.Fatalf("missing list = %v", missing)
	}
}

func TestValidateCollectionSizeMismatch(t *testing.T) {
	ctx := context.Background()
	d := digestOf([]byte("child"))
	ba, _ := Encode(Node{Kind: cascade.NodeCollection, Size: 10, Entries: []Entry{{Name: "c", Digest: d}}})
	hasChild := func(ctx context.Context, k cascade.Key) (bool, error) { return true, nil }
	childSize := func(ctx context.Context, k cascade.Key) (int64, error) { return 5, nil }
	_, err := Validate(ctx, ba, cascade.NewKey(ba), hasChild, childSize)
	if cascade.CodeOf(err) != cascade.SizeMismatch {
		t.Fatalf("code = %v, want SizeMismatch", cascade.CodeOf(err))
	}
}

func TestEmptyCollectionWellKnownKey(t *testing.T) {
	n, err := Decode(EmptyCollection)
	if err != nil {
		t.Fatalf("Decode(EmptyCollection): %v", err)
	}
	if n.Kind != cascade.NodeCollection || len(n.Entries) != 0 || n.Size != 0 {
		t.Fatalf("EmptyCollection decoded to %+v", n)
	}
	if EmptyCollectionKey != cascade.NewKey(EmptyCollection) {
		t.Fatal("EmptyCollectionKey is not the key of EmptyCollection")
	}
}
