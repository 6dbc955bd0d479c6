package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sharedcode/cascade"
)

type pendingAuthStore struct {
	locker  sync.Mutex
	pending map[string]*cascade.PendingAuth
}

// NewPendingAuthStore instantiates an in-memory enrolment candidate store.
func NewPendingAuthStore() cascade.PendingAuthStore {
	return &pendingAuthStore{pending: make(map[string]*cascade.PendingAuth)}
}

func (p *pendingAuthStore) Create(ctx context.Context, pa cascade.PendingAuth) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	stored := pa
	p.pending[pa.Pubkey] = &stored
	return nil
}

func (p *pendingAuthStore) Get(ctx context.Context, pubkey string) (*cascade.PendingAuth, error) {
	p.locker.Lock()
	defer p.locker.Unlock()
	pa, ok := p.pending[pubkey]
	if !ok {
		return nil, nil
	}
	if pa.Expired(cascade.Now()) {
		delete(p.pending, pubkey)
		return nil, nil
	}
	copied := *pa
	return &copied, nil
}

func (p *pendingAuthStore) Approve(ctx context.Context, pubkey, userID string) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	pa, ok := p.pending[pubkey]
	if !ok || pa.Expired(cascade.Now()) {
		return cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no pending enrolment for pubkey")}
	}
	pa.Approved = true
	pa.UserID = userID
	return nil
}

func (p *pendingAuthStore) ValidateCode(ctx context.Context, pubkey, code string) (bool, error) {
	pa, err := p.Get(ctx, pubkey)
	if err != nil || pa == nil {
		return false, err
	}
	return pa.Code == code, nil
}

func (p *pendingAuthStore) Delete(ctx context.Context, pubkey string) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	delete(p.pending, pubkey)
	return nil
}

type pubkeyStore struct {
	locker  sync.Mutex
	pubkeys map[string]*cascade.AuthorizedPubkey
}

// NewPubkeyStore instantiates an in-memory enrolled pubkey store.
func NewPubkeyStore() cascade.PubkeyStore {
	return &pubkeyStore{pubkeys: make(map[string]*cascade.AuthorizedPubkey)}
}

func (p *pubkeyStore) Lookup(ctx context.Context, pubkey string) (*cascade.AuthorizedPubkey, error) {
	p.locker.Lock()
	defer p.locker.Unlock()
	pk, ok := p.pubkeys[pubkey]
	if !ok {
		return nil, nil
	}
	copied := *pk
	return &copied, nil
}

func (p *pubkeyStore) Store(ctx context.Context, pk cascade.AuthorizedPubkey) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	stored := pk
	p.pubkeys[pk.Pubkey] = &stored
	return nil
}

func (p *pubkeyStore) Revoke(ctx context.Context, pubkey string) error {
	p.locker.Lock()
	defer p.locker.Unlock()
	delete(p.pubkeys, pubkey)
	return nil
}

func (p *pubkeyStore) ListByUser(ctx context.Context, userID string) ([]cascade.AuthorizedPubkey, error) {
	p.locker.Lock()
	defer p.locker.Unlock()
	var pks []cascade.AuthorizedPubkey
	for _, pk := range p.pubkeys {
		if pk.UserID == userID {
			pks = append(pks, *pk)
		}
	}
	return pks, nil
}
