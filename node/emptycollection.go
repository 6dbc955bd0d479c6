package node

import (
	"github.com/sharedcode/cascade"
)

// EmptyCollection is the encoded zero-entry collection node. Its key is
// globally well known: every depot starts from it and ref-counting treats it
// like any other node.
var EmptyCollection []byte

// EmptyCollectionKey is the fixed CAS key of EmptyCollection.
var EmptyCollectionKey cascade.Key

func init() {
	ba, err := Encode(Node{Kind: cascade.NodeCollection})
	if err != nil {
		panic(err)
	}
	EmptyCollection = ba
	EmptyCollectionKey = cascade.NewKey(ba)
}
