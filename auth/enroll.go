package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/sharedcode/cascade"
)

// Enrolment timings surfaced to polling clients.
const (
	EnrolmentTTL          = 10 * time.Minute
	EnrolmentPollInterval = 5 * time.Second
)

// Enrolment drives signed-client onboarding: the client submits a pubkey and
// shows the returned code to its user; a signed-in user approves the code;
// the client polls until approval lands and the pubkey becomes authorized.
type Enrolment struct {
	pending cascade.PendingAuthStore
	pubkeys cascade.PubkeyStore
}

// NewEnrolment wires the enrolment flow over its two stores.
func NewEnrolment(pending cascade.PendingAuthStore, pubkeys cascade.PubkeyStore) *Enrolment {
	return &Enrolment{pending: pending, pubkeys: pubkeys}
}

// Init begins an enrolment for the pubkey and returns the verification code
// the user must approve. The pubkey must be a parseable P-256 key.
func (e *Enrolment) Init(ctx context.Context, pubkey string) (cascade.PendingAuth, error) {
	if _, err := parsePubkey(pubkey); err != nil {
		return cascade.PendingAuth{}, err
	}
	if existing, err := e.pubkeys.Lookup(ctx, pubkey); err != nil {
		return cascade.PendingAuth{}, err
	} else if existing != nil {
		return cascade.PendingAuth{}, cascade.Error{Code: cascade.Conflict, Err: fmt.Errorf("pubkey is already enrolled")}
	}
	code, err := verificationCode()
	if err != nil {
		return cascade.PendingAuth{}, cascade.Error{Code: cascade.Unknown, Err: err}
	}
	now := cascade.Now()
	pa := cascade.PendingAuth{
		Pubkey:    pubkey,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(EnrolmentTTL),
	}
	if err := e.pending.Create(ctx, pa); err != nil {
		return cascade.PendingAuth{}, err
	}
	return pa, nil
}

// Status reports the candidate's state for the client's poll loop. Approved
// candidates are promoted to authorized pubkeys and removed from pending.
func (e *Enrolment) Status(ctx context.Context, pubkey string) (*cascade.PendingAuth, error) {
	pa, err := e.pending.Get(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	if pa == nil {
		return nil, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("no pending enrolment for pubkey")}
	}
	if pa.Approved {
		if err := e.pubkeys.Store(ctx, cascade.AuthorizedPubkey{
			Pubkey:    pubkey,
			UserID:    pa.UserID,
			Algorithm: AlgorithmES256,
			CreatedAt: cascade.Now(),
		}); err != nil {
			return nil, err
		}
		if err := e.pending.Delete(ctx, pubkey); err != nil {
			return nil, err
		}
	}
	return pa, nil
}

// Complete records the signed-in user's approval of the verification code.
func (e *Enrolment) Complete(ctx context.Context, pubkey, code, userID string) error {
	ok, err := e.pending.ValidateCode(ctx, pubkey, code)
	if err != nil {
		return err
	}
	if !ok {
		return cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("verification code mismatch")}
	}
	return e.pending.Approve(ctx, pubkey, userID)
}

// verificationCode returns a 6-digit decimal code.
func verificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
