package common

import (
	"context"
	"fmt"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
)

// GetNode reads a node's bytes with its ownership metadata. A key the realm
// does not own is NotFound regardless of whether the blob exists elsewhere.
func (s *Service) GetNode(ctx context.Context, ac auth.Context, realm string, key cascade.Key) ([]byte, *cascade.OwnershipEntry, error) {
	if !ac.MayRead(key) {
		return nil, nil, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("credential cannot read key %s", key)}
	}
	entry, err := s.stores.Ownership.Get(ctx, realm, key)
	if err != nil {
		return nil, nil, err
	}
	if entry == nil {
		return nil, nil, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("key %s is not in realm %s", key, realm)}
	}
	ba, err := s.stores.Blobs.Get(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	if ba == nil {
		return nil, nil, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("blob of %s is gone", key)}
	}
	return ba, entry, nil
}
