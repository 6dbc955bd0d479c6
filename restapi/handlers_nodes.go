package restapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
	"github.com/sharedcode/cascade/encoding"
	"github.com/sharedcode/cascade/node"
)

// Response headers of the chunk read route.
const (
	HeaderCASKind        = "X-CAS-Kind"
	HeaderCASSize        = "X-CAS-Size"
	HeaderCASContentType = "X-CAS-Content-Type"
)

// getHealth godoc
//
//	@Summary	Liveness probe
//	@Success	200	{object}	map[string]string
//	@Router		/health [get]
func (s *Server) getHealth(c *gin.Context) {
	status := gin.H{"status": "ok", "version": cascade.Version}
	if s.cache != nil {
		if err := s.cache.Ping(c.Request.Context()); err != nil {
			status["cache"] = "down"
		} else {
			status["cache"] = "ok"
		}
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getRealmInfo(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	info, err := s.svc.Info(c.Request.Context(), realm, ac.CanRead, ac.CanWrite)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// putChunk stores one node. A MissingChildren outcome is a planned result,
// answered 200 with the list so the client uploads leaves first and retries.
func (s *Server) putChunk(c *gin.Context, ac auth.Context, realm string, body []byte) {
	key, err := cascade.ParseKey(c.Param("key"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	result, err := s.svc.PutNode(c.Request.Context(), ac, realm, key, body, c.ContentType())
	if err != nil {
		if missing := node.MissingKeys(err); missing != nil {
			c.JSON(http.StatusOK, gin.H{
				"success": false,
				"error":   "missing_nodes",
				"missing": missing,
			})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (s *Server) getChunk(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	key, err := cascade.ParseKey(c.Param("key"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	ba, entry, err := s.svc.GetNode(c.Request.Context(), ac, realm, key)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Header(HeaderCASKind, entry.Kind.String())
	c.Header(HeaderCASSize, strconv.FormatInt(entry.ByteSize, 10))
	c.Header(HeaderCASContentType, entry.ContentType)
	c.Data(http.StatusOK, "application/octet-stream", ba)
}

func (s *Server) getTree(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	key, err := cascade.ParseKey(c.Param("key"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	result, err := s.svc.Tree(c.Request.Context(), ac, realm, key, c.Query("next"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type resolveRequest struct {
	Keys []cascade.Key `json:"keys" binding:"required"`
}

// postResolve partitions keys into present and missing for upload planning.
func (s *Server) postResolve(c *gin.Context, ac auth.Context, realm string, body []byte) {
	var req resolveRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	for _, k := range req.Keys {
		if _, err := cascade.ParseKey(string(k)); err != nil {
			abortWithError(c, err)
			return
		}
	}
	present, missing, err := s.svc.Resolve(c.Request.Context(), realm, req.Keys)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"present": present, "missing": missing})
}

func (s *Server) getUsage(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	u, err := s.svc.Usage(c.Request.Context(), realm)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// bindJSON decodes a pre-read JSON body.
func bindJSON(body []byte, target interface{}) error {
	if len(body) == 0 {
		return cascade.Error{Code: cascade.MalformedRequest, Err: fmt.Errorf("request body is required")}
	}
	if err := encoding.DefaultMarshaler.Unmarshal(body, target); err != nil {
		return cascade.Error{Code: cascade.MalformedRequest, Err: err}
	}
	return nil
}
