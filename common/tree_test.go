package common

import (
	"context"
	"fmt"
	"testing"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/node"
)

func encodeCollection(t *testing.T, size int64, entries map[string]cascade.Key) (cascade.Key, []byte) {
	t.Helper()
	es := make([]node.Entry, 0, len(entries))
	for name, k := range entries {
		d, err := k.Digest()
		if err != nil {
			t.Fatalf("Digest: %v", err)
		}
		es = append(es, node.Entry{Name: name, Digest: d})
	}
	ba, err := node.Encode(node.Node{Kind: cascade.NodeCollection, Size: size, Entries: es})
	if err != nil {
		t.Fatalf("Encode collection: %v", err)
	}
	return cascade.NewKey(ba), ba
}

func TestTreeWalksTheDAG(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")

	c1, ba1 := encodeChunk(t, "one")
	c2, ba2 := encodeChunk(t, "two")
	file, fileBA := encodeFile(t, 6, c1, c2)
	mustPut(t, s, ac, ac.Realm, c1, ba1)
	mustPut(t, s, ac, ac.Realm, c2, ba2)
	mustPut(t, s, ac, ac.Realm, file, fileBA)
	coll, collBA := encodeCollection(t, 6, map[string]cascade.Key{"doc.txt": file})
	mustPut(t, s, ac, ac.Realm, coll, collBA)

	result, err := s.Tree(ctx, ac, ac.Realm, coll, "")
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if result.Next != "" {
		t.Fatalf("small tree paged: next=%q", result.Next)
	}
	if len(result.Nodes) != 4 {
		t.Fatalf("tree has %d nodes, want 4", len(result.Nodes))
	}
	root := result.Nodes[coll]
	if root.Kind != "collection" || len(root.Children) != 1 || root.Children[0] != file {
		t.Fatalf("root node = %+v", root)
	}
	fn := result.Nodes[file]
	if fn.Kind != "file" || len(fn.Children) != 2 {
		t.Fatalf("file node = %+v", fn)
	}
	if result.Nodes[c1].Kind != "chunk" {
		t.Fatalf("chunk node = %+v", result.Nodes[c1])
	}
}

func TestTreePagesLargeCollections(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")

	const leaves = TreeLimit + 200
	entries := make(map[string]cascade.Key, leaves)
	var total int64
	for i := 0; i < leaves; i++ {
		payload := fmt.Sprintf("leaf-%04d", i)
		k, ba := encodeChunk(t, payload)
		mustPut(t, s, ac, ac.Realm, k, ba)
		entries[fmt.Sprintf("f%04d", i)] = k
		total += int64(len(payload))
	}
	root, rootBA := encodeCollection(t, total, entries)
	mustPut(t, s, ac, ac.Realm, root, rootBA)

	seen := make(map[cascade.Key]bool)
	cursor := ""
	pages := 0
	for {
		result, err := s.Tree(ctx, ac, ac.Realm, root, cursor)
		if err != nil {
			t.Fatalf("Tree page %d: %v", pages, err)
		}
		pages++
		for k := range result.Nodes {
			if seen[k] {
				t.Fatalf("node %s repeated across pages", k)
			}
			seen[k] = true
		}
		if result.Next == "" {
			break
		}
		cursor = result.Next
		if pages > 5 {
			t.Fatal("walk did not terminate")
		}
	}
	if pages < 2 {
		t.Fatalf("walk took %d page, want a continuation", pages)
	}
	if len(seen) != leaves+1 {
		t.Fatalf("walk covered %d nodes, want %d", len(seen), leaves+1)
	}
	if !seen[root] {
		t.Fatal("walk missed the root")
	}
}

func TestTreeUnownedRootIsNotFound(t *testing.T) {
	s := newTestService()
	ac := userContext("u1")
	root, _ := encodeChunk(t, "never stored")
	_, err := s.Tree(context.Background(), ac, ac.Realm, root, "")
	if cascade.CodeOf(err) != cascade.NotFound {
		t.Fatalf("code = %v, want NotFound", cascade.CodeOf(err))
	}
}

func TestTreeHonoursReadScope(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	ac := userContext("u1")
	root, ba := encodeChunk(t, "content")
	mustPut(t, s, ac, ac.Realm, root, ba)

	scoped := ac
	scoped.AllowedKeys = []cascade.Key{cascade.NewKey([]byte("elsewhere"))}
	_, err := s.Tree(ctx, scoped, ac.Realm, root, "")
	if cascade.CodeOf(err) != cascade.Forbidden {
		t.Fatalf("code = %v, want Forbidden", cascade.CodeOf(err))
	}
}

func TestTreeRejectsBadContinuation(t *testing.T) {
	s := newTestService()
	ac := userContext("u1")
	root, ba := encodeChunk(t, "content")
	mustPut(t, s, ac, ac.Realm, root, ba)

	_, err := s.Tree(context.Background(), ac, ac.Realm, root, "%%% not base64 %%%")
	if cascade.CodeOf(err) != cascade.MalformedRequest {
		t.Fatalf("code = %v, want MalformedRequest", cascade.CodeOf(err))
	}
}
