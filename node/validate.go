package node

import (
	"context"
	"fmt"

	"github.com/sharedcode/cascade"
)

// HasChildFunc reports whether a child digest exists in the blob store.
type HasChildFunc func(ctx context.Context, key cascade.Key) (bool, error)

// ChildSizeFunc returns a child's declared size.
type ChildSizeFunc func(ctx context.Context, key cascade.Key) (int64, error)

// Validate runs the full pass over an encoded node:
//
//  1. magic and framing OK (Decode);
//  2. sha256(ba) == expectedKey, else HashMismatch;
//  3. every referenced child exists, else MissingChildren with the list;
//  4. for collections, the declared size equals the sum of the children's
//     declared sizes, else SizeMismatch.
//
// Child presence is re-read within the caller's handler so a racing delete
// is observed rather than assumed away.
func Validate(ctx context.Context, ba []byte, expectedKey cascade.Key, hasChild HasChildFunc, childSize ChildSizeFunc) (Node, error) {
	n, err := Decode(ba)
	if err != nil {
		return Node{}, err
	}
	if actual := cascade.NewKey(ba); actual != expectedKey {
		return Node{}, cascade.Error{
			Code:     cascade.HashMismatch,
			Err:      fmt.Errorf("expected key %s, actual %s", expectedKey, actual),
			UserData: actual,
		}
	}

	children := n.ChildKeys()
	if len(children) == 0 {
		return n, nil
	}
	var missing []cascade.Key
	for _, c := range children {
		ok, err := hasChild(ctx, c)
		if err != nil {
			return Node{}, err
		}
		if !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return Node{}, cascade.Error{
			Code:     cascade.MissingChildren,
			Err:      fmt.Errorf("%d of %d children are not uploaded yet", len(missing), len(children)),
			UserData: missing,
		}
	}

	if n.Kind == cascade.NodeCollection {
		var sum int64
		for _, c := range children {
			s, err := childSize(ctx, c)
			if err != nil {
				return Node{}, err
			}
			sum += s
		}
		if sum != n.Size {
			return Node{}, cascade.Error{
				Code: cascade.SizeMismatch,
				Err:  fmt.Errorf("collection declares %d bytes, children sum to %d", n.Size, sum),
			}
		}
	}
	return n, nil
}

// MissingKeys extracts the missing children list from a MissingChildren error.
func MissingKeys(err error) []cascade.Key {
	if e, ok := err.(cascade.Error); ok && e.Code == cascade.MissingChildren {
		if keys, ok := e.UserData.([]cascade.Key); ok {
			return keys
		}
	}
	return nil
}
