package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
)

func (s *Server) getDepots(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	depots, err := s.svc.ListDepots(c.Request.Context(), ac, realm)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"depots": depots})
}

type depotCreateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description,omitempty"`
}

func (s *Server) postDepot(c *gin.Context, ac auth.Context, realm string, body []byte) {
	var req depotCreateRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	d, err := s.svc.CreateDepot(c.Request.Context(), ac, realm, req.Name, req.Description)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (s *Server) getDepot(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	d, err := s.svc.GetDepot(c.Request.Context(), realm, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type depotUpdateRequest struct {
	Root    cascade.Key `json:"root" binding:"required"`
	Message string      `json:"message,omitempty"`
}

func (s *Server) putDepot(c *gin.Context, ac auth.Context, realm string, body []byte) {
	var req depotUpdateRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	root, err := cascade.ParseKey(string(req.Root))
	if err != nil {
		abortWithError(c, err)
		return
	}
	d, err := s.svc.UpdateDepotRoot(c.Request.Context(), ac, realm, c.Param("id"), root, req.Message)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) deleteDepot(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	if err := s.svc.DeleteDepot(c.Request.Context(), ac, realm, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) getDepotHistory(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	history, err := s.svc.DepotHistory(c.Request.Context(), realm, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

type rollbackRequest struct {
	Version int64 `json:"version" binding:"required"`
}

func (s *Server) postDepotRollback(c *gin.Context, ac auth.Context, realm string, body []byte) {
	var req rollbackRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	d, err := s.svc.RollbackDepot(c.Request.Context(), ac, realm, c.Param("id"), req.Version)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
