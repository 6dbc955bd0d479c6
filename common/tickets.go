package common

import (
	"context"
	"fmt"
	"time"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
)

// IssueTicket creates a bounded delegated credential for the caller's realm.
// The TTL is clamped to the configured maximum; zero means the maximum.
func (s *Service) IssueTicket(ctx context.Context, ac auth.Context, readScope []cascade.Key, commit *cascade.CommitGrant, ttl time.Duration) (cascade.Token, error) {
	if !ac.CanIssueTicket {
		return cascade.Token{}, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("credential cannot issue tickets")}
	}
	if ttl <= 0 || ttl > s.cfg.MaxTicketTTL {
		ttl = s.cfg.MaxTicketTTL
	}
	if commit != nil && !commit.Root.IsNil() {
		return cascade.Token{}, cascade.Error{Code: cascade.MalformedRequest, Err: fmt.Errorf("a fresh ticket cannot carry a consumed commit grant")}
	}
	return s.stores.Tokens.CreateTicket(ctx, ac.Realm, ac.TokenID, readScope, commit, ttl)
}

// RevokeTicket deletes a ticket issued for the caller's realm.
func (s *Service) RevokeTicket(ctx context.Context, ac auth.Context, ticketID string) error {
	tok, err := s.stores.Tokens.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if tok == nil || tok.Kind != cascade.TokenTicket {
		return cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no ticket %s", ticketID)}
	}
	if tok.Realm != ac.Realm {
		return cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("ticket belongs to another realm")}
	}
	return s.stores.Tokens.Revoke(ctx, ticketID)
}

// CreateAgentToken mints a long-lived user surrogate. TTL clamps to the
// configured maximum; zero means the maximum.
func (s *Service) CreateAgentToken(ctx context.Context, ac auth.Context, name, description string, ttl time.Duration) (cascade.Token, error) {
	if ac.UserID == "" {
		return cascade.Token{}, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("only user credentials can mint agent tokens")}
	}
	if ttl <= 0 || ttl > s.cfg.MaxAgentTokenTTL {
		ttl = s.cfg.MaxAgentTokenTTL
	}
	return s.stores.Tokens.CreateAgentToken(ctx, ac.UserID, name, description, ttl)
}

// ListAgentTokens lists the caller's live agent tokens.
func (s *Service) ListAgentTokens(ctx context.Context, ac auth.Context) ([]cascade.Token, error) {
	if ac.UserID == "" {
		return nil, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("only user credentials can list tokens")}
	}
	return s.stores.Tokens.ListByUser(ctx, ac.UserID)
}

// RevokeAgentToken deletes one of the caller's own tokens.
func (s *Service) RevokeAgentToken(ctx context.Context, ac auth.Context, tokenID string) error {
	owned, err := s.stores.Tokens.VerifyOwnership(ctx, tokenID, ac.UserID)
	if err != nil {
		return err
	}
	if !owned {
		return cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no token %s", tokenID)}
	}
	return s.stores.Tokens.Revoke(ctx, tokenID)
}
