// Package node implements the binary codec for the four CAS node kinds and
// their structural validation. Encode and Decode are pure functions; the
// full Validate pass additionally checks hash-equals-key and child presence
// through caller-supplied lookups.
package node

import (
	"github.com/sharedcode/cascade"
)

// Entry is one (name, child digest) pair of a collection.
type Entry struct {
	Name   string
	Digest [32]byte
}

// Node is the typed view over a blob.
type Node struct {
	Kind cascade.NodeKind
	// Size is the declared size field: payload length for chunks and
	// inline-files, sum of child sizes for files and collections.
	Size int64
	// ContentType is the original MIME for inline-files and files.
	ContentType string
	// Payload carries the raw bytes of chunks and inline-files.
	Payload []byte
	// Children are the ordered child digests of a file node.
	Children [][32]byte
	// Entries are the ordered (name, digest) pairs of a collection.
	Entries []Entry
}

// ChildKeys returns the node's child digests as CAS keys, in declared order.
func (n Node) ChildKeys() []cascade.Key {
	switch n.Kind {
	case cascade.NodeFile:
		keys := make([]cascade.Key, len(n.Children))
		for i := range n.Children {
			keys[i] = cascade.KeyFromDigest(n.Children[i])
		}
		return keys
	case cascade.NodeCollection:
		keys := make([]cascade.Key, len(n.Entries))
		for i := range n.Entries {
			keys[i] = cascade.KeyFromDigest(n.Entries[i].Digest)
		}
		return keys
	}
	return nil
}

// LogicalSize is the user-payload size: nonzero only for chunks and inline-files.
func (n Node) LogicalSize() int64 {
	switch n.Kind {
	case cascade.NodeChunk, cascade.NodeInlineFile:
		return n.Size
	}
	return 0
}
