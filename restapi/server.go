// Package restapi surfaces the cascade service over HTTP with gin. Routes
// live under /api; the ticket mirror under /api/ticket/:ticket repeats the
// realm routes with the ticket ID as the credential.
package restapi

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"     // swagger embed files
	ginSwagger "github.com/swaggo/gin-swagger" // gin-swagger middleware

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
	"github.com/sharedcode/cascade/common"
)

// Server wires the HTTP surface over the service and auth components.
type Server struct {
	cfg       cascade.Config
	svc       *common.Service
	resolver  *auth.Resolver
	enrolment *auth.Enrolment
	pubkeys   cascade.PubkeyStore
	cache     cascade.Cache
}

// NewServer builds the HTTP surface. cache may be nil; the health route then
// skips the cache ping.
func NewServer(cfg cascade.Config, svc *common.Service, resolver *auth.Resolver, enrolment *auth.Enrolment, pubkeys cascade.PubkeyStore, cache cascade.Cache) *Server {
	return &Server{
		cfg:       cfg,
		svc:       svc,
		resolver:  resolver,
		enrolment: enrolment,
		pubkeys:   pubkeys,
		cache:     cache,
	}
}

// Run builds the router from the registered method table and blocks serving
// until the process is signalled.
func (s *Server) Run() error {
	router := s.Router()
	return router.Run(fmt.Sprintf(":%d", s.cfg.Port))
}

// Router assembles the gin engine; split out of Run for tests.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()
	router.Use(corsMiddleware())

	s.registerMethods()

	api := router.Group("/api")
	{
		for _, rm := range RestMethods() {
			switch rm.Verb {
			case GET:
				api.GET(rm.Path, rm.Handler)
			case DELETE:
				api.DELETE(rm.Path, rm.Handler)
			case POST:
				api.POST(rm.Path, rm.Handler)
			case PUT:
				api.PUT(rm.Path, rm.Handler)
			case PATCH:
				api.PATCH(rm.Path, rm.Handler)
			default:
				panic(fmt.Sprintf("HTTP verb %d not supported", rm.Verb))
			}
		}
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))
	return router
}

func (s *Server) registerMethods() {
	RegisterMethod(GET, "/health", s.getHealth)
	RegisterMethod(GET, "/oauth/config", s.getOAuthConfig)
	RegisterMethod(POST, "/oauth/token", s.postOAuthToken)
	RegisterMethod(GET, "/oauth/me", s.withAuth(s.getMe))

	RegisterMethod(POST, "/auth/clients/init", s.postClientInit)
	RegisterMethod(GET, "/auth/clients/status", s.getClientStatus)
	RegisterMethod(POST, "/auth/clients/complete", s.withAuth(s.postClientComplete))
	RegisterMethod(GET, "/auth/clients", s.withAuth(s.getClients))
	RegisterMethod(DELETE, "/auth/clients/:pubkey", s.withAuth(s.deleteClient))

	RegisterMethod(POST, "/auth/tokens", s.withAuth(s.postToken))
	RegisterMethod(GET, "/auth/tokens", s.withAuth(s.getTokens))
	RegisterMethod(DELETE, "/auth/tokens/:id", s.withAuth(s.deleteToken))
	RegisterMethod(POST, "/auth/ticket", s.withAuth(s.postTicket))
	RegisterMethod(DELETE, "/auth/ticket/:id", s.withAuth(s.deleteTicket))

	s.registerRealmMethods("/realm/:realm", s.withAuth)
	s.registerRealmMethods("/ticket/:ticket", s.withTicket)
}

// registerRealmMethods registers the realm route set under the given prefix;
// wrap chooses the credential source (header or ticket path param).
func (s *Server) registerRealmMethods(prefix string, wrap func(realmHandler) func(*gin.Context)) {
	RegisterMethod(GET, prefix, wrap(s.getRealmInfo))
	RegisterMethod(PUT, prefix+"/chunks/:key", wrap(s.putChunk))
	RegisterMethod(GET, prefix+"/chunks/:key", wrap(s.getChunk))
	RegisterMethod(GET, prefix+"/tree/:key", wrap(s.getTree))
	RegisterMethod(POST, prefix+"/resolve", wrap(s.postResolve))
	RegisterMethod(POST, prefix+"/commit", wrap(s.postCommit))
	RegisterMethod(GET, prefix+"/commits", wrap(s.getCommits))
	RegisterMethod(GET, prefix+"/commits/:root", wrap(s.getCommit))
	RegisterMethod(PATCH, prefix+"/commits/:root", wrap(s.patchCommit))
	RegisterMethod(DELETE, prefix+"/commits/:root", wrap(s.deleteCommit))
	RegisterMethod(GET, prefix+"/usage", wrap(s.getUsage))
	RegisterMethod(GET, prefix+"/depots", wrap(s.getDepots))
	RegisterMethod(POST, prefix+"/depots", wrap(s.postDepot))
	RegisterMethod(GET, prefix+"/depots/:id", wrap(s.getDepot))
	RegisterMethod(PUT, prefix+"/depots/:id", wrap(s.putDepot))
	RegisterMethod(DELETE, prefix+"/depots/:id", wrap(s.deleteDepot))
	RegisterMethod(GET, prefix+"/depots/:id/history", wrap(s.getDepotHistory))
	RegisterMethod(POST, prefix+"/depots/:id/rollback", wrap(s.postDepotRollback))
}

// realmHandler is a handler that runs with a resolved credential and realm.
// The request body is pre-read because signed requests sign it.
type realmHandler func(c *gin.Context, ac auth.Context, realm string, body []byte)

// withAuth authenticates via signed headers or bearer credential. The realm
// path param, when present, is resolved through the alias rules.
func (s *Server) withAuth(h realmHandler) func(c *gin.Context) {
	return func(c *gin.Context) {
		body, err := readBody(c, s.cfg.NodeSizeLimit)
		if err != nil {
			abortWithError(c, err)
			return
		}
		ac, err := s.resolver.Resolve(c.Request.Context(), c.Request.Method, c.Request.URL.RequestURI(), c.Request.Header, body)
		if err != nil {
			abortWithError(c, err)
			return
		}
		realm := ac.Realm
		if requested := c.Param("realm"); requested != "" {
			realm, err = ac.ResolveRealm(requested)
			if err != nil {
				abortWithError(c, err)
				return
			}
		}
		h(c, ac, realm, body)
	}
}

// withTicket authenticates by the ticket ID in the path, with identical policy.
func (s *Server) withTicket(h realmHandler) func(c *gin.Context) {
	return func(c *gin.Context) {
		body, err := readBody(c, s.cfg.NodeSizeLimit)
		if err != nil {
			abortWithError(c, err)
			return
		}
		ac, err := s.resolver.ResolveToken(c.Request.Context(), c.Param("ticket"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		h(c, ac, ac.Realm, body)
	}
}

// readBody drains the request body up to one byte past the node size limit so
// oversized uploads are detected rather than truncated.
func readBody(c *gin.Context, limit int64) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, nil
	}
	reader := io.Reader(c.Request.Body)
	if limit > 0 {
		reader = io.LimitReader(reader, limit+1)
	}
	ba, err := io.ReadAll(reader)
	if err != nil {
		return nil, cascade.Error{Code: cascade.Transient, Err: err}
	}
	return ba, nil
}

// corsMiddleware applies the wildcard CORS policy; OPTIONS yields 204.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Authorization, Content-Type, "+auth.HeaderPubkey+", "+auth.HeaderTimestamp+", "+auth.HeaderSignature)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
