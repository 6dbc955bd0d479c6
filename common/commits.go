package common

import (
	"context"
	"fmt"
	log "log/slog"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
)

// CreateCommit pins root in the realm: the root must exist and be owned, the
// commit adds one reference to it, and a single-commit ticket is consumed
// atomically. When the ticket already committed, the ref and commit record
// are reverted and the call fails with Forbidden. A root commits at most
// once; a second commit of the same root is Conflict.
func (s *Service) CreateCommit(ctx context.Context, ac auth.Context, realm string, root cascade.Key, title string) (cascade.Commit, error) {
	if !ac.CanWrite {
		return cascade.Commit{}, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("credential cannot commit")}
	}
	owned, err := s.stores.Ownership.Has(ctx, realm, root)
	if err != nil {
		return cascade.Commit{}, err
	}
	if !owned {
		return cascade.Commit{}, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("root %s is not in realm %s", root, realm)}
	}
	has, err := s.stores.Blobs.Has(ctx, root)
	if err != nil {
		return cascade.Commit{}, err
	}
	if !has {
		return cascade.Commit{}, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("blob of root %s is gone", root)}
	}
	dup, err := s.stores.Commits.Get(ctx, realm, root)
	if err != nil {
		return cascade.Commit{}, err
	}
	if dup != nil {
		return cascade.Commit{}, cascade.Error{Code: cascade.Conflict, Err: fmt.Errorf("root %s is already committed in realm %s", root, realm)}
	}

	if err := s.incrementChild(ctx, realm, root); err != nil {
		return cascade.Commit{}, err
	}
	commit := cascade.Commit{
		Realm:     realm,
		Root:      root,
		Title:     title,
		CreatedAt: cascade.Now(),
		CreatedBy: ac.UserID,
	}
	if err := s.stores.Commits.Create(ctx, commit); err != nil {
		s.revertCommit(ctx, realm, root, false)
		return cascade.Commit{}, err
	}

	if ac.Ticket != nil && ac.Ticket.Commit != nil {
		committed, err := s.stores.Tokens.MarkTicketCommitted(ctx, ac.Ticket.ID, root)
		if err != nil {
			s.revertCommit(ctx, realm, root, true)
			return cascade.Commit{}, err
		}
		if !committed {
			// The ticket's single-use guarantee: the loser reverts.
			s.revertCommit(ctx, realm, root, true)
			return cascade.Commit{}, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("ticket already committed")}
		}
	}
	return commit, nil
}

// revertCommit undoes the ref increment, and optionally the commit record, of
// a failed CreateCommit. Failures are logged; the protection window absorbs
// an over-counted reference.
func (s *Service) revertCommit(ctx context.Context, realm string, root cascade.Key, removeRecord bool) {
	if removeRecord {
		if err := s.stores.Commits.Delete(ctx, realm, root); err != nil {
			log.Warn(fmt.Sprintf("reverting commit record %s/%s failed, details: %v", realm, root, err))
		}
	}
	if _, err := s.stores.Refs.Decrement(ctx, realm, root); err != nil {
		log.Warn(fmt.Sprintf("reverting commit ref %s/%s failed, details: %v", realm, root, err))
	}
}

// GetCommit returns the commit record, or NotFound.
func (s *Service) GetCommit(ctx context.Context, realm string, root cascade.Key) (cascade.Commit, error) {
	c, err := s.stores.Commits.Get(ctx, realm, root)
	if err != nil {
		return cascade.Commit{}, err
	}
	if c == nil {
		return cascade.Commit{}, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no commit of %s in realm %s", root, realm)}
	}
	return *c, nil
}

// RetitleCommit updates only the commit's metadata; no ref changes.
func (s *Service) RetitleCommit(ctx context.Context, realm string, root cascade.Key, title string) error {
	return s.stores.Commits.SetTitle(ctx, realm, root, title)
}

// DeleteCommit removes the commit and drops its reference on the root.
func (s *Service) DeleteCommit(ctx context.Context, realm string, root cascade.Key) error {
	c, err := s.stores.Commits.Get(ctx, realm, root)
	if err != nil {
		return err
	}
	if c == nil {
		return cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no commit of %s in realm %s", root, realm)}
	}
	if _, err := s.stores.Refs.Decrement(ctx, realm, root); err != nil {
		return err
	}
	return s.stores.Commits.Delete(ctx, realm, root)
}

// ListCommits pages the realm's commits newest-first.
func (s *Service) ListCommits(ctx context.Context, realm string, limit int, cursor string) ([]cascade.Commit, string, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.stores.Commits.List(ctx, realm, limit, cursor)
}
