package common

import (
	"context"
	"fmt"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
	"github.com/sharedcode/cascade/node"
)

// DefaultContentType is recorded when the put carries no content-type header.
const DefaultContentType = "application/octet-stream"

// ticketMeterRealm is the pseudo-realm under which a ticket's consumed bytes
// are metered for its commit quota.
func ticketMeterRealm(ticketID string) string {
	return "tkt_" + ticketID
}

// PutResult reports a successful node put.
type PutResult struct {
	Key  cascade.Key      `json:"key"`
	Kind cascade.NodeKind `json:"kind"`
	Size int64            `json:"size"`
	// NewToRealm is true when this put created the realm's ref record.
	NewToRealm bool `json:"newToRealm"`
}

// PutNode runs the write hot path: quota admission, framing and full
// validation, blob put, ownership add, ref bookkeeping for the node and an
// edge onto each child, and usage accrual when the node is new to the realm.
//
// The upload itself holds no edge: only commits, depot roots and parent
// nodes do. An uncommitted upload sits at count 0 in the pending state and
// survives on the protection window alone, which covers the client's
// upload-then-commit (or retry) span.
//
// A re-put of an already-recorded node is a client retry: the blob and
// ownership writes repeat idempotently, but no refs, usage or quota move,
// so retrying a PUT any number of times leaves the realm's books unchanged.
func (s *Service) PutNode(ctx context.Context, ac auth.Context, realm string, key cascade.Key, body []byte, contentType string) (PutResult, error) {
	if !ac.CanWrite {
		return PutResult{}, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("credential cannot write")}
	}
	if s.cfg.NodeSizeLimit > 0 && int64(len(body)) > s.cfg.NodeSizeLimit {
		return PutResult{}, cascade.Error{Code: cascade.MalformedRequest, Err: fmt.Errorf("node of %d bytes exceeds the %d byte limit", len(body), s.cfg.NodeSizeLimit)}
	}
	if _, err := node.QuickValidate(body); err != nil {
		return PutResult{}, err
	}

	existing, err := s.stores.Refs.Get(ctx, realm, key)
	if err != nil {
		return PutResult{}, err
	}
	if existing == nil {
		if err := s.admitTicketBytes(ctx, ac, int64(len(body))); err != nil {
			return PutResult{}, err
		}
		allowed, snapshot, err := s.stores.Usage.CheckQuota(ctx, realm, int64(len(body)))
		if err != nil {
			return PutResult{}, err
		}
		if !allowed {
			return PutResult{}, cascade.Error{
				Code:     cascade.QuotaExceeded,
				Err:      fmt.Errorf("realm %s quota of %d bytes would be exceeded", realm, snapshot.QuotaLimit),
				UserData: snapshot.QuotaLimit - snapshot.PhysicalBytes,
			}
		}
	}

	// Child presence is checked against the realm's ownership so one realm's
	// uploads never become reachable from another realm's parents.
	n, err := node.Validate(ctx, body, key,
		func(ctx context.Context, k cascade.Key) (bool, error) {
			return s.stores.Ownership.Has(ctx, realm, k)
		},
		func(ctx context.Context, k cascade.Key) (int64, error) {
			e, err := s.stores.Ownership.Get(ctx, realm, k)
			if err != nil {
				return 0, err
			}
			if e == nil {
				return 0, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("child %s vanished during validation", k)}
			}
			return e.ByteSize, nil
		})
	if err != nil {
		return PutResult{}, err
	}

	if err := s.stores.Blobs.Put(ctx, key, body); err != nil {
		return PutResult{}, err
	}
	if contentType == "" {
		contentType = DefaultContentType
	}
	if err := s.stores.Ownership.Add(ctx, cascade.OwnershipEntry{
		Realm:       realm,
		Key:         key,
		Kind:        n.Kind,
		ContentType: contentType,
		ByteSize:    n.Size,
		CreatedAt:   cascade.Now(),
		CreatedBy:   ac.UserID,
	}); err != nil {
		return PutResult{}, err
	}

	if existing == nil {
		if _, err := s.stores.Refs.Increment(ctx, realm, key, int64(len(body)), n.LogicalSize()); err != nil {
			return PutResult{}, err
		}
		for _, child := range n.ChildKeys() {
			if err := s.incrementChild(ctx, realm, child); err != nil {
				return PutResult{}, err
			}
		}
		if err := s.stores.Usage.Apply(ctx, realm, int64(len(body)), n.LogicalSize(), 1); err != nil {
			return PutResult{}, err
		}
		// Balance the bookkeeping increment: the put leaves no edge of its own.
		if _, err := s.stores.Refs.Decrement(ctx, realm, key); err != nil {
			return PutResult{}, err
		}
		if err := s.meterTicketBytes(ctx, ac, int64(len(body))); err != nil {
			return PutResult{}, err
		}
	}
	return PutResult{
		Key:        key,
		Kind:       n.Kind,
		Size:       n.Size,
		NewToRealm: existing == nil,
	}, nil
}

// incrementChild adds the parent's edge onto an already-present child,
// carrying the sizes from the child's existing record.
func (s *Service) incrementChild(ctx context.Context, realm string, child cascade.Key) error {
	e, err := s.stores.Refs.Get(ctx, realm, child)
	if err != nil {
		return err
	}
	var physical, logical int64
	if e != nil {
		physical, logical = e.PhysicalSize, e.LogicalSize
	}
	_, err = s.stores.Refs.Increment(ctx, realm, child, physical, logical)
	return err
}

// admitTicketBytes rejects the put when it would push a quota'd ticket past
// its commit budget.
func (s *Service) admitTicketBytes(ctx context.Context, ac auth.Context, size int64) error {
	if ac.Ticket == nil || ac.Ticket.Commit == nil || ac.Ticket.Commit.Quota <= 0 {
		return nil
	}
	used, err := s.stores.Usage.Get(ctx, ticketMeterRealm(ac.Ticket.ID))
	if err != nil {
		return err
	}
	remaining := ac.Ticket.Commit.Quota - used.PhysicalBytes
	if size > remaining {
		return cascade.Error{
			Code:     cascade.QuotaExceeded,
			Err:      fmt.Errorf("ticket quota of %d bytes would be exceeded", ac.Ticket.Commit.Quota),
			UserData: remaining,
		}
	}
	return nil
}

// meterTicketBytes accrues consumed bytes against the ticket's budget.
func (s *Service) meterTicketBytes(ctx context.Context, ac auth.Context, size int64) error {
	if ac.Ticket == nil || ac.Ticket.Commit == nil || ac.Ticket.Commit.Quota <= 0 {
		return nil
	}
	return s.stores.Usage.Apply(ctx, ticketMeterRealm(ac.Ticket.ID), size, 0, 0)
}
