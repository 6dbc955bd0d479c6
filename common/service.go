// Package common implements the cascade service flows over the store
// contracts: node puts and reads, tree traversal, commits, depots, tickets
// and usage. It depends only on the contracts; backends are wired by the
// caller.
package common

import (
	"context"

	"github.com/sharedcode/cascade"
)

// Stores carries the backing store set of a Service.
type Stores struct {
	Blobs     cascade.BlobStore
	Ownership cascade.OwnershipLedger
	Refs      cascade.RefCounter
	Usage     cascade.UsageMeter
	Tokens    cascade.TokenStore
	Commits   cascade.CommitStore
	Depots    cascade.DepotStore
}

// Service orchestrates the cascade flows.
type Service struct {
	cfg    cascade.Config
	stores Stores
}

// NewService wires a Service over its configuration and stores.
func NewService(cfg cascade.Config, stores Stores) *Service {
	return &Service{cfg: cfg, stores: stores}
}

// Config returns the service configuration.
func (s *Service) Config() cascade.Config {
	return s.cfg
}

// Resolve partitions keys into present and missing within the realm, for
// dedup-aware upload planning.
func (s *Service) Resolve(ctx context.Context, realm string, keys []cascade.Key) (present []cascade.Key, missing []cascade.Key, err error) {
	return s.stores.Ownership.Check(ctx, realm, keys)
}

// Usage returns the realm's usage summary.
func (s *Service) Usage(ctx context.Context, realm string) (cascade.UsageSummary, error) {
	return s.stores.Usage.Get(ctx, realm)
}

// SetQuota sets the realm's byte budget; 0 means unlimited.
func (s *Service) SetQuota(ctx context.Context, realm string, bytes int64) error {
	return s.stores.Usage.SetQuota(ctx, realm, bytes)
}

// ListOwnership pages the realm's ownership entries newest-first.
func (s *Service) ListOwnership(ctx context.Context, realm string, limit int, cursor string) ([]cascade.OwnershipEntry, string, error) {
	return s.stores.Ownership.List(ctx, realm, limit, cursor)
}

// RealmInfo summarises a realm's limits for the endpoint-info route.
type RealmInfo struct {
	Realm         string `json:"realm"`
	NodeSizeLimit int64  `json:"nodeSizeLimit"`
	MaxNameBytes  int    `json:"maxNameBytes"`
	QuotaLimit    int64  `json:"quotaLimit"`
	CanRead       bool   `json:"canRead"`
	CanWrite      bool   `json:"canWrite"`
}

// Info returns the realm's endpoint info.
func (s *Service) Info(ctx context.Context, realm string, canRead, canWrite bool) (RealmInfo, error) {
	u, err := s.stores.Usage.Get(ctx, realm)
	if err != nil {
		return RealmInfo{}, err
	}
	return RealmInfo{
		Realm:         realm,
		NodeSizeLimit: s.cfg.NodeSizeLimit,
		MaxNameBytes:  s.cfg.MaxNameBytes,
		QuotaLimit:    u.QuotaLimit,
		CanRead:       canRead,
		CanWrite:      canWrite,
	}, nil
}
