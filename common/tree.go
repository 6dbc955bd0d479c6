package common

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
	"github.com/sharedcode/cascade/encoding"
	"github.com/sharedcode/cascade/node"
)

// TreeLimit caps the nodes returned by a single traversal page.
const TreeLimit = 1000

// TreeNode summarises one DAG node in a traversal response.
type TreeNode struct {
	Kind        string        `json:"kind"`
	Size        int64         `json:"size"`
	ContentType string        `json:"contentType,omitempty"`
	Children    []cascade.Key `json:"children,omitempty"`
}

// TreeResult is one page of a breadth-first DAG traversal. Next, when set, is
// the opaque continuation resuming where this page stopped.
type TreeResult struct {
	Nodes map[cascade.Key]TreeNode `json:"nodes"`
	Next  string                   `json:"next,omitempty"`
}

// Tree walks the DAG breadth-first from root, up to TreeLimit nodes per page.
// The continuation encodes the BFS frontier, so resuming covers exactly the
// remainder (a node reachable through two parents is reported once per page).
func (s *Service) Tree(ctx context.Context, ac auth.Context, realm string, root cascade.Key, cursor string) (TreeResult, error) {
	var frontier []cascade.Key
	if cursor == "" {
		if !ac.MayRead(root) {
			return TreeResult{}, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("credential cannot read key %s", root)}
		}
		owned, err := s.stores.Ownership.Has(ctx, realm, root)
		if err != nil {
			return TreeResult{}, err
		}
		if !owned {
			return TreeResult{}, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("key %s is not in realm %s", root, realm)}
		}
		frontier = []cascade.Key{root}
	} else {
		f, err := decodeFrontier(cursor)
		if err != nil {
			return TreeResult{}, err
		}
		frontier = f
	}

	result := TreeResult{Nodes: make(map[cascade.Key]TreeNode, TreeLimit)}
	visited := make(map[cascade.Key]struct{}, TreeLimit)
	for len(frontier) > 0 && len(result.Nodes) < TreeLimit {
		if err := ctx.Err(); err != nil {
			return TreeResult{}, cascade.Error{Code: cascade.Transient, Err: err}
		}
		key := frontier[0]
		frontier = frontier[1:]
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}

		entry, err := s.stores.Ownership.Get(ctx, realm, key)
		if err != nil {
			return TreeResult{}, err
		}
		if entry == nil {
			// A racing GC can remove a child mid-walk; report what remains.
			continue
		}
		tn := TreeNode{
			Kind:        entry.Kind.String(),
			Size:        entry.ByteSize,
			ContentType: entry.ContentType,
		}
		if entry.Kind == cascade.NodeFile || entry.Kind == cascade.NodeCollection {
			ba, err := s.stores.Blobs.Get(ctx, key)
			if err != nil {
				return TreeResult{}, err
			}
			if ba != nil {
				n, err := node.Decode(ba)
				if err == nil {
					tn.Children = n.ChildKeys()
					frontier = append(frontier, tn.Children...)
				}
			}
		}
		result.Nodes[key] = tn
	}

	if len(frontier) > 0 {
		// Drop already-visited stragglers before packaging the continuation.
		remaining := frontier[:0]
		for _, k := range frontier {
			if _, ok := visited[k]; !ok {
				remaining = append(remaining, k)
			}
		}
		if len(remaining) > 0 {
			next, err := encodeFrontier(remaining)
			if err != nil {
				return TreeResult{}, err
			}
			result.Next = next
		}
	}
	return result, nil
}

func encodeFrontier(frontier []cascade.Key) (string, error) {
	ba, err := encoding.DefaultMarshaler.Marshal(frontier)
	if err != nil {
		return "", cascade.Error{Code: cascade.Unknown, Err: err}
	}
	return base64.RawURLEncoding.EncodeToString(ba), nil
}

func decodeFrontier(cursor string) ([]cascade.Key, error) {
	ba, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, cascade.Error{Code: cascade.MalformedRequest, Err: fmt.Errorf("bad continuation, details: %v", err)}
	}
	var frontier []cascade.Key
	if err := encoding.DefaultMarshaler.Unmarshal(ba, &frontier); err != nil {
		return nil, cascade.Error{Code: cascade.MalformedRequest, Err: fmt.Errorf("bad continuation, details: %v", err)}
	}
	return frontier, nil
}
