package restapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
)

type commitRequest struct {
	Root  cascade.Key `json:"root" binding:"required"`
	Title string      `json:"title,omitempty"`
}

// postCommit pins a root. On a ticket this is the single commit that
// consumes the grant.
func (s *Server) postCommit(c *gin.Context, ac auth.Context, realm string, body []byte) {
	var req commitRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	root, err := cascade.ParseKey(string(req.Root))
	if err != nil {
		abortWithError(c, err)
		return
	}
	commit, err := s.svc.CreateCommit(c.Request.Context(), ac, realm, root, req.Title)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, commit)
}

func (s *Server) getCommits(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	commits, next, err := s.svc.ListCommits(c.Request.Context(), realm, limit, c.Query("cursor"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commits": commits, "next": next})
}

func (s *Server) getCommit(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	root, err := cascade.ParseKey(c.Param("root"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	commit, err := s.svc.GetCommit(c.Request.Context(), realm, root)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, commit)
}

type retitleRequest struct {
	Title string `json:"title"`
}

func (s *Server) patchCommit(c *gin.Context, ac auth.Context, realm string, body []byte) {
	root, err := cascade.ParseKey(c.Param("root"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	var req retitleRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	if err := s.svc.RetitleCommit(c.Request.Context(), realm, root, req.Title); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) deleteCommit(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	root, err := cascade.ParseKey(c.Param("root"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := s.svc.DeleteCommit(c.Request.Context(), realm, root); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
