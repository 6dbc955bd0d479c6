package auth

import (
	"context"
	"testing"
)

func TestJWTVerifierDerivesJWKSURL(t *testing.T) {
	v := NewJWTVerifier(context.Background(), "https://idp.example.com/", "client-1")
	if v.jwksURL != "https://idp.example.com/.well-known/jwks.json" {
		t.Fatalf("jwksURL = %q", v.jwksURL)
	}
}

func TestJWTVerifierBoundsJWKSFetch(t *testing.T) {
	v := NewJWTVerifier(context.Background(), "https://idp.example.com", "client-1")
	if v.client == nil || v.client.Timeout != jwksFetchTimeout {
		t.Fatalf("JWKS fetches are unbounded: client = %+v", v.client)
	}
}

func TestLooksLikeJWT(t *testing.T) {
	if !looksLikeJWT("aaa.bbb.ccc") {
		t.Fatal("compact JWS not recognised")
	}
	for _, s := range []string{"tok_opaque", "a.b", "a.b.c.d"} {
		if looksLikeJWT(s) {
			t.Fatalf("%q misread as a JWT", s)
		}
	}
}
