package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sharedcode/cascade"
)

// Resolver maps request credentials to a Context. Probe order: signed-client
// headers, then bearer JWT, then stored token lookup.
type Resolver struct {
	pubkeys cascade.PubkeyStore
	tokens  cascade.TokenStore
	jwt     *JWTVerifier
}

// NewResolver wires the resolver. jwtVerifier may be nil when no IdP is
// configured; bearer JWTs are then rejected.
func NewResolver(pubkeys cascade.PubkeyStore, tokens cascade.TokenStore, jwtVerifier *JWTVerifier) *Resolver {
	return &Resolver{
		pubkeys: pubkeys,
		tokens:  tokens,
		jwt:     jwtVerifier,
	}
}

// Resolve authenticates the request. body is the full request payload; it
// participates in signed-request verification.
func (r *Resolver) Resolve(ctx context.Context, method, pathAndQuery string, header http.Header, body []byte) (Context, error) {
	if pubkey := header.Get(HeaderPubkey); pubkey != "" {
		return r.verifySigned(ctx, pubkey, header.Get(HeaderTimestamp), header.Get(HeaderSignature), method, pathAndQuery, body)
	}
	bearer := header.Get("Authorization")
	if bearer == "" {
		return Context{}, cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("no credential presented")}
	}
	credential := strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer"))
	if credential == "" {
		return Context{}, cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("empty bearer credential")}
	}
	if looksLikeJWT(credential) {
		if r.jwt == nil {
			return Context{}, cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("no identity provider configured")}
		}
		userID, err := r.jwt.Verify(ctx, credential)
		if err != nil {
			return Context{}, err
		}
		return Context{
			UserID:         userID,
			Realm:          cascade.RealmOfUser(userID),
			CanRead:        true,
			CanWrite:       true,
			CanIssueTicket: true,
		}, nil
	}
	return r.ResolveToken(ctx, credential)
}

// ResolveToken authenticates a stored-token credential; it also serves the
// ticket-only path where the ticket ID travels in the URL.
func (r *Resolver) ResolveToken(ctx context.Context, tokenID string) (Context, error) {
	tok, err := r.tokens.Get(ctx, tokenID)
	if err != nil {
		return Context{}, err
	}
	if tok == nil {
		return Context{}, cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("unknown token")}
	}
	if tok.Expired(cascade.Now()) {
		if tok.Kind == cascade.TokenTicket {
			return Context{}, cascade.Error{Code: cascade.Gone, Err: fmt.Errorf("ticket expired")}
		}
		return Context{}, cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("token expired")}
	}
	switch tok.Kind {
	case cascade.TokenUser, cascade.TokenAgent:
		return Context{
			UserID:         tok.UserID,
			Realm:          cascade.RealmOfUser(tok.UserID),
			TokenID:        tok.ID,
			CanRead:        true,
			CanWrite:       true,
			CanIssueTicket: true,
		}, nil
	case cascade.TokenTicket:
		c := Context{
			Realm:   tok.Realm,
			TokenID: tok.ID,
			CanRead: true,
			Ticket:  tok,
		}
		if len(tok.ReadScope) > 0 {
			c.AllowedKeys = tok.ReadScope
		}
		// A ticket may write only while its single commit is unconsumed.
		c.CanWrite = tok.Commit != nil && tok.Commit.Root.IsNil()
		return c, nil
	}
	return Context{}, cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("unusable token kind")}
}
