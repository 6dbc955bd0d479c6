package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/inmemory"
)

type signedClient struct {
	key    *ecdsa.PrivateKey
	pubkey string
}

func newSignedClient(t *testing.T) signedClient {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return signedClient{key: key, pubkey: base64.StdEncoding.EncodeToString(der)}
}

func (c signedClient) headers(t *testing.T, ts time.Time, method, pathAndQuery string, body []byte) http.Header {
	t.Helper()
	timestamp := fmt.Sprintf("%d", ts.Unix())
	digest := sha256.Sum256([]byte(CanonicalString(timestamp, method, pathAndQuery, body)))
	sig, err := ecdsa.SignASN1(rand.Reader, c.key, digest[:])
	if err != nil {
		t.Fatalf("SignASN1: %v", err)
	}
	h := http.Header{}
	h.Set(HeaderPubkey, c.pubkey)
	h.Set(HeaderTimestamp, timestamp)
	h.Set(HeaderSignature, base64.StdEncoding.EncodeToString(sig))
	return h
}

func newSignedResolver(t *testing.T, c signedClient, userID string) *Resolver {
	t.Helper()
	ctx := context.Background()
	pubkeys := inmemory.NewPubkeyStore()
	if err := pubkeys.Store(ctx, cascade.AuthorizedPubkey{
		Pubkey:    c.pubkey,
		UserID:    userID,
		Algorithm: AlgorithmES256,
		CreatedAt: cascade.Now(),
	}); err != nil {
		t.Fatalf("Store pubkey: %v", err)
	}
	return NewResolver(pubkeys, inmemory.NewTokenStore(), nil)
}

func TestSignedRequestResolves(t *testing.T) {
	ctx := context.Background()
	client := newSignedClient(t)
	r := newSignedResolver(t, client, "u1")

	body := []byte(`{"keys":[]}`)
	h := client.headers(t, time.Now(), "POST", "/api/realm/usr_u1/resolve", body)
	ac, err := r.Resolve(ctx, "POST", "/api/realm/usr_u1/resolve", h, body)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ac.UserID != "u1" || ac.Realm != "usr_u1" || !ac.CanWrite || !ac.CanIssueTicket {
		t.Fatalf("resolved context = %+v", ac)
	}
}

func TestSignedRequestRejectsTamperedBody(t *testing.T) {
	ctx := context.Background()
	client := newSignedClient(t)
	r := newSignedResolver(t, client, "u1")

	h := client.headers(t, time.Now(), "POST", "/api/realm/usr_u1/resolve", []byte("original"))
	_, err := r.Resolve(ctx, "POST", "/api/realm/usr_u1/resolve", h, []byte("tampered"))
	if cascade.CodeOf(err) != cascade.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", cascade.CodeOf(err))
	}
}

func TestSignedRequestRejectsStaleTimestamp(t *testing.T) {
	ctx := context.Background()
	client := newSignedClient(t)
	r := newSignedResolver(t, client, "u1")

	h := client.headers(t, time.Now().Add(-MaxClockSkew-time.Minute), "GET", "/api/realm/~", nil)
	_, err := r.Resolve(ctx, "GET", "/api/realm/~", h, nil)
	if cascade.CodeOf(err) != cascade.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", cascade.CodeOf(err))
	}
}

func TestSignedRequestRejectsUnknownPubkey(t *testing.T) {
	ctx := context.Background()
	client := newSignedClient(t)
	r := NewResolver(inmemory.NewPubkeyStore(), inmemory.NewTokenStore(), nil)

	h := client.headers(t, time.Now(), "GET", "/api/realm/~", nil)
	_, err := r.Resolve(ctx, "GET", "/api/realm/~", h, nil)
	if cascade.CodeOf(err) != cascade.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", cascade.CodeOf(err))
	}
}

func TestSignedRequestRejectsWrongKeySignature(t *testing.T) {
	ctx := context.Background()
	enrolled := newSignedClient(t)
	other := newSignedClient(t)
	r := newSignedResolver(t, enrolled, "u1")

	// Signature produced by a different key but presented under the
	// enrolled pubkey.
	h := other.headers(t, time.Now(), "GET", "/api/realm/~", nil)
	h.Set(HeaderPubkey, enrolled.pubkey)
	_, err := r.Resolve(ctx, "GET", "/api/realm/~", h, nil)
	if cascade.CodeOf(err) != cascade.Unauthenticated {
		t.Fatalf("code = %v, want Unauthenticated", cascade.CodeOf(err))
	}
}
