package cassandra

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/gocql/gocql"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/encoding"
)

type tokenStore struct {
	l2 cascade.Cache
}

// NewTokenStore instantiates the Cassandra-backed token store for user tokens,
// agent tokens and tickets.
func NewTokenStore() cascade.TokenStore {
	return &tokenStore{}
}

// NewCachedTokenStore layers the redis cache over token reads; every request
// resolves a credential, so the hot tokens stay out of Cassandra. Cache
// failures are tolerated and logged. Revocation and ticket consumption
// invalidate, so staleness is bounded by the cache duration on other nodes.
func NewCachedTokenStore(l2 cascade.Cache) cascade.TokenStore {
	return &tokenStore{l2: l2}
}

const tokenCacheDuration = 5 * time.Minute

func tokenCacheKey(tokenID string) string {
	return "tok_" + tokenID
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
	return tok, t.insert(ctx, tok)
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
	return tok, t.insert(ctx, tok)
}

func (t *tokenStore) CreateTicket(ctx context.Context, realm, issuerTokenID string, readScope []cascade.Key, commit *cascade.CommitGrant, ttl time.Duration) (cascade.Token, error) {
	now := cascade.Now()
	tok := cascade.Token{
		ID:            cascade.NewUUID().String(),
		Kind:          cascade.TokenTicket,
		Realm:         realm,
		ReadScope:     readScope,
		Commit:        commit,
		IssuerTokenID: issuerTokenID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	return tok, t.insert(ctx, tok)
}

func (t *tokenStore) insert(ctx context.Context, tok cascade.Token) error {
	if connection == nil {
		return errClosed()
	}
	scope := ""
	if len(tok.ReadScope) > 0 {
		ba, err := encoding.DefaultMarshaler.Marshal(tok.ReadScope)
		if err != nil {
			return cascade.Error{Code: cascade.Unknown, Err: err}
		}
		scope = string(ba)
	}
	var hasCommit bool
	var commitQuota int64
	var commitRoot string
	if tok.Commit != nil {
		hasCommit = true
		commitQuota = tok.Commit.Quota
		commitRoot = string(tok.Commit.Root)
	}
	insertStatement := fmt.Sprintf("INSERT INTO %s.tokens (id, kind, user_id, name, description, realm, read_scope, has_commit, commit_quota, commit_root, issuer_token_id, created_at, expires_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?);", connection.Config.Keyspace)
	if err := connection.Session.Query(insertStatement, tok.ID, int(tok.Kind), tok.UserID, tok.Name, tok.Description, tok.Realm, scope, hasCommit, commitQuota, commitRoot, tok.IssuerTokenID, tok.CreatedAt, tok.ExpiresAt).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	if tok.UserID != "" {
		insertStatement = fmt.Sprintf("INSERT INTO %s.tokens_by_user (user_id, id) VALUES(?,?);", connection.Config.Keyspace)
		if err := connection.Session.Query(insertStatement, tok.UserID, tok.ID).WithContext(ctx).Exec(); err != nil {
			return cascade.Error{Code: cascade.Transient, Err: err}
		}
	}
	return nil
}

func (t *tokenStore) Get(ctx context.Context, tokenID string) (*cascade.Token, error) {
	// Expired tokens are returned as-is; the caller distinguishes expired
	// from unknown (tickets map to Gone, not Unauthenticated).
	return t.read(ctx, tokenID)
}

func (t *tokenStore) read(ctx context.Context, tokenID string) (*cascade.Token, error) {
	if connection == nil {
		return nil, errClosed()
	}
	if t.l2 != nil {
		var cached cascade.Token
		found, err := t.l2.GetStruct(ctx, tokenCacheKey(tokenID), &cached)
		if err != nil {
			log.Warn(fmt.Sprintf("token cache get for %s failed, details: %v", tokenID, err))
		} else if found {
			return &cached, nil
		}
	}
	selectStatement := fmt.Sprintf("SELECT kind, user_id, name, description, realm, read_scope, has_commit, commit_quota, commit_root, issuer_token_id, created_at, expires_at FROM %s.tokens WHERE id = ?;", connection.Config.Keyspace)
	qry := connection.Session.Query(selectStatement, tokenID).WithContext(ctx)
	if connection.Config.ConsistencyBook.TokenGet > gocql.Any {
		qry.Consistency(connection.Config.ConsistencyBook.TokenGet)
	}
	tok := cascade.Token{ID: tokenID}
	var kind int
	var scope string
	var hasCommit bool
	var commitQuota int64
	var commitRoot string
	if err := qry.Scan(&kind, &tok.UserID, &tok.Name, &tok.Description, &tok.Realm, &scope, &hasCommit, &commitQuota, &commitRoot, &tok.IssuerTokenID, &tok.CreatedAt, &tok.ExpiresAt); err != nil {
		if err == gocql.ErrNotFound {
			return nil, nil
		}
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	tok.Kind = cascade.TokenKind(kind)
	if scope != "" {
		if err := encoding.DefaultMarshaler.Unmarshal([]byte(scope), &tok.ReadScope); err != nil {
			return nil, cascade.Error{Code: cascade.Unknown, Err: err}
		}
	}
	if hasCommit {
		tok.Commit = &cascade.CommitGrant{Quota: commitQuota, Root: cascade.Key(commitRoot)}
	}
	if t.l2 != nil {
		if err := t.l2.SetStruct(ctx, tokenCacheKey(tokenID), tok, tokenCacheDuration); err != nil {
			log.Warn(fmt.Sprintf("token cache set for %s failed, details: %v", tokenID, err))
		}
	}
	return &tok, nil
}

func (t *tokenStore) invalidate(ctx context.Context, tokenID string) {
	if t.l2 == nil {
		return
	}
	if _, err := t.l2.Delete(ctx, []string{tokenCacheKey(tokenID)}); err != nil {
		log.Warn(fmt.Sprintf("token cache invalidation for %s failed, details: %v", tokenID, err))
	}
}

func (t *tokenStore) Revoke(ctx context.Context, tokenID string) error {
	if connection == nil {
		return errClosed()
	}
	tok, err := t.read(ctx, tokenID)
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	deleteStatement := fmt.Sprintf("DELETE FROM %s.tokens WHERE id = ?;", connection.Config.Keyspace)
	if err := connection.Session.Query(deleteStatement, tokenID).WithContext(ctx).Exec(); err != nil {
		return cascade.Error{Code: cascade.Transient, Err: err}
	}
	if tok.UserID != "" {
		deleteStatement = fmt.Sprintf("DELETE FROM %s.tokens_by_user WHERE user_id = ? AND id = ?;", connection.Config.Keyspace)
		if err := connection.Session.Query(deleteStatement, tok.UserID, tokenID).WithContext(ctx).Exec(); err != nil {
			return cascade.Error{Code: cascade.Transient, Err: err}
		}
	}
	t.invalidate(ctx, tokenID)
	return nil
}

// MarkTicketCommitted records the ticket's single commit through an LWT on
// commit_root; the second committer reads applied=false.
func (t *tokenStore) MarkTicketCommitted(ctx context.Context, ticketID string, root cascade.Key) (bool, error) {
	if connection == nil {
		return false, errClosed()
	}
	updateStatement := fmt.Sprintf("UPDATE %s.tokens SET commit_root = ? WHERE id = ? IF commit_root = ?;", connection.Config.Keyspace)
	applied, err := connection.Session.Query(updateStatement, string(root), ticketID, "").WithContext(ctx).ScanCAS()
	if err != nil {
		return false, cascade.Error{Code: cascade.Transient, Err: err}
	}
	t.invalidate(ctx, ticketID)
	return applied, nil
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
	if connection == nil {
		return nil, errClosed()
	}
	selectStatement := fmt.Sprintf("SELECT id FROM %s.tokens_by_user WHERE user_id = ?;", connection.Config.Keyspace)
	iter := connection.Session.Query(selectStatement, userID).WithContext(ctx).Iter()
	var ids []string
	var id string
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	now := cascade.Now()
	var tokens []cascade.Token
	for _, id := range ids {
		tok, err := t.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if tok == nil || tok.Kind != cascade.TokenAgent || tok.Expired(now) {
			continue
		}
		tokens = append(tokens, *tok)
	}
	return tokens, nil
}
