// Package gc implements the delayed garbage collector. Records whose count
// reached zero wait out a protection window before their ownership, ref
// record and (when globally unreferenced) blob are reclaimed.
package gc

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/node"
)

// Collector reclaims pending records past the protection window.
type Collector struct {
	cfg       cascade.Config
	blobs     cascade.BlobStore
	ownership cascade.OwnershipLedger
	refs      cascade.RefCounter
	usage     cascade.UsageMeter
}

// NewCollector wires a collector over its stores.
func NewCollector(cfg cascade.Config, blobs cascade.BlobStore, ownership cascade.OwnershipLedger, refs cascade.RefCounter, usage cascade.UsageMeter) *Collector {
	return &Collector{
		cfg:       cfg,
		blobs:     blobs,
		ownership: ownership,
		refs:      refs,
		usage:     usage,
	}
}

// RunStats summarises one collector run.
type RunStats struct {
	Scanned   int
	Reclaimed int
	Erased    int
	Failed    int
}

// Run performs one bounded collection pass: up to GCMaxBatches pages of
// GCBatchSize pending entries older than the protection window. Per-entry
// failures are logged and counted; the run continues.
//
// A queued entry can re-activate between being queued and being reclaimed,
// when a commit or a re-put lands during the window. ListPending re-reads
// each entry's live record and drops those no longer pending, so Run only
// ever sees entries that are still collectable at read time.
func (c *Collector) Run(ctx context.Context) (RunStats, error) {
	threshold := cascade.Now().Add(-c.cfg.ProtectionWindow)
	var stats RunStats
	cursor := ""
	for batch := 0; batch < c.cfg.GCMaxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		entries, next, err := c.refs.ListPending(ctx, threshold, c.cfg.GCBatchSize, cursor)
		if err != nil {
			return stats, err
		}
		for _, e := range entries {
			stats.Scanned++
			erased, err := c.reclaimWithRetry(ctx, e)
			if err != nil {
				stats.Failed++
				log.Error(fmt.Sprintf("gc of %s/%s failed, details: %v", e.Realm, e.Key, err))
				continue
			}
			stats.Reclaimed++
			if erased {
				stats.Erased++
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return stats, nil
}

// reclaimWithRetry runs reclaim under backoff for transient store failures.
// Reclaim steps are idempotent-or-monotone, so a partial pass is safe to redo.
func (c *Collector) reclaimWithRetry(ctx context.Context, e cascade.RefCountEntry) (erased bool, err error) {
	err = cascade.Retry(ctx, func(ctx context.Context) error {
		var rerr error
		erased, rerr = c.reclaim(ctx, e)
		if rerr != nil && cascade.ShouldRetry(rerr) {
			return retry.RetryableError(rerr)
		}
		return rerr
	}, nil)
	return erased, err
}

// reclaim collects one pending entry: decrement its children (they wait out
// their own window), roll back usage, drop ownership and the ref record, and
// erase the blob when no realm references it anymore. Every step is
// idempotent-or-monotone, so a partial reclaim is safe to retry.
func (c *Collector) reclaim(ctx context.Context, e cascade.RefCountEntry) (erased bool, err error) {
	ba, err := c.blobs.Get(ctx, e.Key)
	if err != nil {
		return false, err
	}
	if ba != nil {
		n, err := node.Decode(ba)
		if err != nil {
			// A malformed stored blob is reclaimed without child decrements.
			log.Warn(fmt.Sprintf("gc decoding %s failed, reclaiming without cascade, details: %v", e.Key, err))
		} else {
			for _, child := range n.ChildKeys() {
				if _, err := c.refs.Decrement(ctx, e.Realm, child); err != nil {
					return false, err
				}
			}
		}
	}
	if err := c.usage.Apply(ctx, e.Realm, -e.PhysicalSize, -e.LogicalSize, -1); err != nil {
		return false, err
	}
	if err := c.ownership.Remove(ctx, e.Realm, e.Key); err != nil {
		return false, err
	}
	if err := c.refs.Delete(ctx, e.Realm, e.Key); err != nil {
		return false, err
	}
	global, err := c.refs.CountGlobal(ctx, e.Key)
	if err != nil {
		return false, err
	}
	if global == 0 {
		if err := c.blobs.Erase(ctx, e.Key); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Loop runs the collector on the configured interval until ctx is cancelled.
func (c *Collector) Loop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := c.Run(ctx)
			if err != nil {
				log.Error(fmt.Sprintf("gc run aborted, details: %v", err))
				continue
			}
			log.Info(fmt.Sprintf("gc run done: scanned %d, reclaimed %d, erased %d, failed %d",
				stats.Scanned, stats.Reclaimed, stats.Erased, stats.Failed))
		}
	}
}
