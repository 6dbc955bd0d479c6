package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/jwk"
	"github.com/lestrrat-go/jwx/jwt"

	"github.com/sharedcode/cascade"
)

// jwksFetchTimeout bounds a single JWKS fetch so a stalled IdP cannot hang
// request authentication.
const jwksFetchTimeout = 10 * time.Second

// JWTVerifier validates IdP access tokens against the issuer's JWKS. The key
// set is cached and refreshed on a bounded schedule by jwk.AutoRefresh.
type JWTVerifier struct {
	issuer   string
	jwksURL  string
	refresh  *jwk.AutoRefresh
	client   *http.Client
	clientID string
}

// NewJWTVerifier configures a verifier for the OIDC issuer. The refresh
// goroutines are bound to ctx; cancel it to stop them.
func NewJWTVerifier(ctx context.Context, issuer, clientID string) *JWTVerifier {
	jwksURL := strings.TrimSuffix(issuer, "/") + "/.well-known/jwks.json"
	client := &http.Client{Timeout: jwksFetchTimeout}
	ar := jwk.NewAutoRefresh(ctx)
	ar.Configure(jwksURL,
		jwk.WithMinRefreshInterval(15*time.Minute),
		jwk.WithHTTPClient(client),
	)
	return &JWTVerifier{
		issuer:   issuer,
		jwksURL:  jwksURL,
		refresh:  ar,
		client:   client,
		clientID: clientID,
	}
}

// Verify checks the raw JWT's signature, issuer, expiry and token_use claim
// and returns the subject user ID.
func (v *JWTVerifier) Verify(ctx context.Context, raw string) (string, error) {
	set, err := v.refresh.Fetch(ctx, v.jwksURL)
	if err != nil {
		return "", cascade.Error{Code: cascade.Transient, Err: fmt.Errorf("JWKS fetch failed, details: %v", err)}
	}
	tok, err := jwt.Parse([]byte(raw),
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return "", cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("JWT rejected, details: %v", err)}
	}
	use, ok := tok.Get("token_use")
	if !ok || use != "access" {
		return "", cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("JWT is not an access token")}
	}
	sub := tok.Subject()
	if sub == "" {
		return "", cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("JWT lacks a subject")}
	}
	return sub, nil
}

// looksLikeJWT reports whether the bearer credential has the three
// dot-separated parts of a compact JWS.
func looksLikeJWT(s string) bool {
	return strings.Count(s, ".") == 2
}
