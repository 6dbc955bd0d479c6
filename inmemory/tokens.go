package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/sharedcode/cascade"
)

type tokenStore struct {
	locker sync.Mutex
	tokens map[string]*cascade.Token
}

// NewTokenStore instantiates an in-memory token store.
func NewTokenStore() cascade.TokenStore {
	return &tokenStore{tokens: make(map[string]*cascade.Token)}
}

func (t *tokenStore) CreateUserToken(ctx context.Context, userID string, ttl time.Duration) (cascade.Token, error) {
	now := cascade.Now()
	tok := cascade.Token{
		ID:        cascade.NewUUID().String(),
		Kind:      cascade.TokenUser,
		UserID:    userID,
		Realm:     cascade.RealmOfUser(userID),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	t.locker.Lock()
	defer t.locker.Unlock()
	stored := tok
	t.tokens[tok.ID] = &stored
	return tok, nil
}

func (t *tokenStore) CreateAgentToken(ctx context.Context, userID, name, description string, ttl time.Duration) (cascade.Token, error) {
	now := cascade.Now()
	tok := cascade.Token{
		ID:          cascade.NewUUID().String(),
		Kind:        cascade.TokenAgent,
		UserID:      userID,
		Name:        name,
		Description: description,
		Realm:       cascade.RealmOfUser(userID),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	t.locker.Lock()
	defer t.locker.Unlock()
	stored := tok
	t.tokens[tok.ID] = &stored
	return tok, nil
}

func (t *tokenStore) CreateTicket(ctx context.Context, realm, issuerTokenID string, readScope []cascade.Key, commit *cascade.CommitGrant, ttl time.Duration) (cascade.Token, error) {
	now := cascade.Now()
	tok := cascade.Token{
		ID:            cascade.NewUUID().String(),
		Kind:          cascade.TokenTicket,
		Realm:         realm,
		ReadScope:     readScope,
		IssuerTokenID: issuerTokenID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	if commit != nil {
		granted := *commit
		tok.Commit = &granted
	}
	t.locker.Lock()
	defer t.locker.Unlock()
	stored := tok
	if stored.Commit != nil {
		grant := *stored.Commit
		stored.Commit = &grant
	}
	t.tokens[tok.ID] = &stored
	return tok, nil
}

func (t *tokenStore) Get(ctx context.Context, tokenID string) (*cascade.Token, error) {
	t.locker.Lock()
	defer t.locker.Unlock()
	tok, ok := t.tokens[tokenID]
	if !ok {
		return nil, nil
	}
	// Expired tokens are returned as-is; the caller distinguishes expired
	// from unknown.
	copied := *tok
	if tok.Commit != nil {
		grant := *tok.Commit
		copied.Commit = &grant
	}
	return &copied, nil
}

func (t *tokenStore) Revoke(ctx context.Context, tokenID string) error {
	t.locker.Lock()
	defer t.locker.Unlock()
	delete(t.tokens, tokenID)
	return nil
}

func (t *tokenStore) MarkTicketCommitted(ctx context.Context, ticketID string, root cascade.Key) (bool, error) {
	t.locker.Lock()
	defer t.locker.Unlock()
	tok, ok := t.tokens[ticketID]
	if !ok || tok.Commit == nil {
		return false, nil
	}
	if !tok.Commit.Root.IsNil() {
		return false, nil
	}
	tok.Commit.Root = root
	return true, nil
}

func (t *tokenStore) VerifyOwnership(ctx context.Context, tokenID, userID string) (bool, error) {
	tok, err := t.Get(ctx, tokenID)
	if err != nil || tok == nil {
		return false, err
	}
	if tok.Expired(cascade.Now()) {
		return false, nil
	}
	return tok.UserID == userID, nil
}

func (t *tokenStore) ListByUser(ctx context.Context, userID string) ([]cascade.Token, error) {
	t.locker.Lock()
	defer t.locker.Unlock()
	now := cascade.Now()
	var tokens []cascade.Token
	for _, tok := range t.tokens {
		if tok.UserID == userID && tok.Kind == cascade.TokenAgent && !tok.Expired(now) {
			tokens = append(tokens, *tok)
		}
	}
	return tokens, nil
}
