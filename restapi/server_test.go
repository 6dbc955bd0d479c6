package restapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
	"github.com/sharedcode/cascade/common"
	"github.com/sharedcode/cascade/inmemory"
	"github.com/sharedcode/cascade/node"
)

// The method table is package-global, so every test shares one server.
var (
	fixtureOnce   sync.Once
	fixtureRouter *gin.Engine
	fixtureTokens cascade.TokenStore
)

func router(t *testing.T) *gin.Engine {
	t.Helper()
	fixtureOnce.Do(func() {
		gin.SetMode(gin.TestMode)
		tokens := inmemory.NewTokenStore()
		pubkeys := inmemory.NewPubkeyStore()
		svc := common.NewService(cascade.DefaultConfig(), common.Stores{
			Blobs:     inmemory.NewBlobStore(),
			Ownership: inmemory.NewOwnershipLedger(),
			Refs:      inmemory.NewRefCounter(),
			Usage:     inmemory.NewUsageMeter(),
			Tokens:    tokens,
			Commits:   inmemory.NewCommitStore(),
			Depots:    inmemory.NewDepotStore(),
		})
		resolver := auth.NewResolver(pubkeys, tokens, nil)
		enrolment := auth.NewEnrolment(inmemory.NewPendingAuthStore(), pubkeys)
		srv := NewServer(cascade.DefaultConfig(), svc, resolver, enrolment, pubkeys, nil)
		fixtureRouter = srv.Router()
		fixtureTokens = tokens
	})
	return fixtureRouter
}

func bearerToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := fixtureTokens.CreateUserToken(context.Background(), userID, time.Hour)
	if err != nil {
		t.Fatalf("CreateUserToken: %v", err)
	}
	return tok.ID
}

func doRequest(t *testing.T, r *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func encodeTestChunk(t *testing.T, payload string) (cascade.Key, []byte) {
	t.Helper()
	ba, err := node.Encode(node.Node{Kind: cascade.NodeChunk, Payload: []byte(payload)})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return cascade.NewKey(ba), ba
}

func TestHealthRoute(t *testing.T) {
	r := router(t)
	w := doRequest(t, r, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), cascade.Version) {
		t.Fatalf("body = %s, want version reported", w.Body.String())
	}
}

func TestRealmRoutesRequireAuth(t *testing.T) {
	r := router(t)
	w := doRequest(t, r, http.MethodGet, "/api/realm/@me/usage", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	w = doRequest(t, r, http.MethodGet, "/api/realm/@me/usage", "no-such-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status with bogus token = %d, want 401", w.Code)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	r := router(t)
	token := bearerToken(t, "round-trip")
	key, ba := encodeTestChunk(t, "over the wire")

	w := doRequest(t, r, http.MethodPut, "/api/realm/@me/chunks/"+string(key), token, ba)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"success":true`) {
		t.Fatalf("put body = %s", w.Body.String())
	}

	w = doRequest(t, r, http.MethodGet, "/api/realm/@me/chunks/"+string(key), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), ba) {
		t.Fatal("returned bytes differ from the upload")
	}
	if w.Header().Get(HeaderCASKind) != "chunk" {
		t.Fatalf("%s = %q, want chunk", HeaderCASKind, w.Header().Get(HeaderCASKind))
	}
}

func TestPutReportsMissingChildren(t *testing.T) {
	r := router(t)
	token := bearerToken(t, "missing-children")
	child, _ := encodeTestChunk(t, "never uploaded")
	d, err := child.Digest()
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	fileBA, err := node.Encode(node.Node{Kind: cascade.NodeFile, Size: 14, Children: [][32]byte{d}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	fileKey := cascade.NewKey(fileBA)

	w := doRequest(t, r, http.MethodPut, "/api/realm/@me/chunks/"+string(fileKey), token, fileBA)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 planned-miss", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "missing_nodes") || !strings.Contains(body, string(child)) {
		t.Fatalf("body = %s, want the missing child listed", body)
	}
}

func TestResolveRoute(t *testing.T) {
	r := router(t)
	token := bearerToken(t, "resolver")
	present, ba := encodeTestChunk(t, "kept")
	absent, _ := encodeTestChunk(t, "lost")

	w := doRequest(t, r, http.MethodPut, "/api/realm/@me/chunks/"+string(present), token, ba)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d", w.Code)
	}

	reqBody := []byte(`{"keys":["` + string(present) + `","` + string(absent) + `"]}`)
	w = doRequest(t, r, http.MethodPost, "/api/realm/@me/resolve", token, reqBody)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, body = %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"present":["`+string(present)) || !strings.Contains(body, `"missing":["`+string(absent)) {
		t.Fatalf("resolve body = %s", body)
	}
}

func TestMalformedKeyIsBadRequest(t *testing.T) {
	r := router(t)
	token := bearerToken(t, "bad-key")
	w := doRequest(t, r, http.MethodGet, "/api/realm/@me/chunks/not-a-key", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
