package common

import (
	"context"
	"fmt"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
	"github.com/sharedcode/cascade/node"
)

// materialiseEmptyCollection makes the well-known empty collection present
// and owned in the realm, so depots can point at it from birth.
func (s *Service) materialiseEmptyCollection(ctx context.Context, realm, creator string) error {
	if err := s.stores.Blobs.Put(ctx, node.EmptyCollectionKey, node.EmptyCollection); err != nil {
		return err
	}
	owned, err := s.stores.Ownership.Has(ctx, realm, node.EmptyCollectionKey)
	if err != nil {
		return err
	}
	if owned {
		return nil
	}
	if err := s.stores.Ownership.Add(ctx, cascade.OwnershipEntry{
		Realm:       realm,
		Key:         node.EmptyCollectionKey,
		Kind:        cascade.NodeCollection,
		ContentType: DefaultContentType,
		ByteSize:    0,
		CreatedAt:   cascade.Now(),
		CreatedBy:   creator,
	}); err != nil {
		return err
	}
	inc, err := s.stores.Refs.Increment(ctx, realm, node.EmptyCollectionKey, int64(len(node.EmptyCollection)), 0)
	if err != nil {
		return err
	}
	if inc.WasZeroBefore {
		if err := s.stores.Usage.Apply(ctx, realm, int64(len(node.EmptyCollection)), 0, 1); err != nil {
			return err
		}
	}
	// Materialisation itself holds no edge; only depots and commits do. The
	// protection window keeps the record alive until the caller's increment.
	if _, err := s.stores.Refs.Decrement(ctx, realm, node.EmptyCollectionKey); err != nil {
		return err
	}
	return nil
}

// EnsureMainDepot auto-creates the realm's reserved "main" depot on first use.
func (s *Service) EnsureMainDepot(ctx context.Context, realm, creator string) (*cascade.Depot, error) {
	d, err := s.stores.Depots.GetByName(ctx, realm, cascade.ReservedDepotName)
	if err != nil {
		return nil, err
	}
	if d != nil {
		return d, nil
	}
	created, err := s.createDepot(ctx, realm, creator, cascade.ReservedDepotName, "")
	if err != nil {
		if cascade.CodeOf(err) == cascade.Conflict {
			// A concurrent request won the bootstrap.
			return s.stores.Depots.GetByName(ctx, realm, cascade.ReservedDepotName)
		}
		return nil, err
	}
	return created, nil
}

// CreateDepot creates a named depot at version 1 pointing at the empty
// collection. The reserved name is rejected; it is bootstrapped implicitly.
func (s *Service) CreateDepot(ctx context.Context, ac auth.Context, realm, name, description string) (*cascade.Depot, error) {
	if !ac.CanWrite {
		return nil, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("credential cannot write")}
	}
	if name == "" {
		return nil, cascade.Error{Code: cascade.MalformedRequest, Err: fmt.Errorf("depot name is required")}
	}
	if name == cascade.ReservedDepotName {
		return nil, cascade.Error{Code: cascade.Conflict, Err: fmt.Errorf("depot name %q is reserved", cascade.ReservedDepotName)}
	}
	return s.createDepot(ctx, realm, ac.UserID, name, description)
}

func (s *Service) createDepot(ctx context.Context, realm, creator, name, description string) (*cascade.Depot, error) {
	if err := s.materialiseEmptyCollection(ctx, realm, creator); err != nil {
		return nil, err
	}
	if err := s.incrementChild(ctx, realm, node.EmptyCollectionKey); err != nil {
		return nil, err
	}
	now := cascade.Now()
	d := cascade.Depot{
		Realm:       realm,
		ID:          cascade.NewUUID().String(),
		Name:        name,
		Root:        node.EmptyCollectionKey,
		Version:     1,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.stores.Depots.Create(ctx, d); err != nil {
		// Name collision; drop the ref taken above.
		if _, derr := s.stores.Refs.Decrement(ctx, realm, node.EmptyCollectionKey); derr != nil {
			return nil, derr
		}
		return nil, err
	}
	return &d, nil
}

// GetDepot returns the depot, or NotFound.
func (s *Service) GetDepot(ctx context.Context, realm, id string) (*cascade.Depot, error) {
	d, err := s.stores.Depots.Get(ctx, realm, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no depot %s in realm %s", id, realm)}
	}
	return d, nil
}

// ListDepots lists the realm's depots, bootstrapping "main" on first use.
func (s *Service) ListDepots(ctx context.Context, ac auth.Context, realm string) ([]cascade.Depot, error) {
	if _, err := s.EnsureMainDepot(ctx, realm, ac.UserID); err != nil {
		return nil, err
	}
	return s.stores.Depots.List(ctx, realm)
}

// UpdateDepotRoot points the depot at newRoot. Ordering is increment-new,
// record-history-and-swap, decrement-old, so a crash leaves a safely
// over-counted reference rather than a dangling pointer. A version CAS loss
// reverts the new ref and fails with Conflict.
func (s *Service) UpdateDepotRoot(ctx context.Context, ac auth.Context, realm, id string, newRoot cascade.Key, message string) (*cascade.Depot, error) {
	if !ac.CanWrite {
		return nil, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("credential cannot write")}
	}
	owned, err := s.stores.Ownership.Has(ctx, realm, newRoot)
	if err != nil {
		return nil, err
	}
	if !owned {
		return nil, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("root %s is not in realm %s", newRoot, realm)}
	}
	cur, err := s.GetDepot(ctx, realm, id)
	if err != nil {
		return nil, err
	}
	oldRoot := cur.Root

	if err := s.incrementChild(ctx, realm, newRoot); err != nil {
		return nil, err
	}
	updated, err := s.stores.Depots.SwapRoot(ctx, realm, id, cur.Version, newRoot, message)
	if err != nil {
		if _, derr := s.stores.Refs.Decrement(ctx, realm, newRoot); derr != nil {
			return nil, derr
		}
		return nil, err
	}
	if _, err := s.stores.Refs.Decrement(ctx, realm, oldRoot); err != nil {
		return nil, err
	}
	return updated, nil
}

// RollbackDepot re-points the depot at a historical root. Rolling back to the
// current root is a no-op. History is audit-only, so a target whose root has
// already been reclaimed is NotFound.
func (s *Service) RollbackDepot(ctx context.Context, ac auth.Context, realm, id string, version int64) (*cascade.Depot, error) {
	v, err := s.stores.Depots.GetVersion(ctx, realm, id, version)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("depot %s has no version %d", id, version)}
	}
	cur, err := s.GetDepot(ctx, realm, id)
	if err != nil {
		return nil, err
	}
	if cur.Root == v.Root {
		return cur, nil
	}
	return s.UpdateDepotRoot(ctx, ac, realm, id, v.Root, fmt.Sprintf("Rollback to v%d", version))
}

// DepotHistory returns the depot's append-only version history.
func (s *Service) DepotHistory(ctx context.Context, realm, id string) ([]cascade.DepotVersion, error) {
	if _, err := s.GetDepot(ctx, realm, id); err != nil {
		return nil, err
	}
	return s.stores.Depots.History(ctx, realm, id)
}

// DeleteDepot removes the depot and drops its reference on the current root.
// The reserved "main" depot cannot be deleted.
func (s *Service) DeleteDepot(ctx context.Context, ac auth.Context, realm, id string) error {
	if !ac.CanWrite {
		return cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("credential cannot write")}
	}
	d, err := s.GetDepot(ctx, realm, id)
	if err != nil {
		return err
	}
	if d.Name == cascade.ReservedDepotName {
		return cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("the %q depot cannot be deleted", cascade.ReservedDepotName)}
	}
	if _, err := s.stores.Refs.Decrement(ctx, realm, d.Root); err != nil {
		return err
	}
	return s.stores.Depots.Delete(ctx, realm, id)
}
