package restapi

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sharedcode/cascade"
	"github.com/sharedcode/cascade/auth"
)

// getOAuthConfig godoc
//
//	@Summary	Public identity-provider settings for browser clients
//	@Success	200	{object}	map[string]string
//	@Router		/oauth/config [get]
func (s *Server) getOAuthConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"issuer":   s.cfg.IdPIssuer,
		"clientId": s.cfg.IdPClientID,
		"region":   s.cfg.IdPRegion,
	})
}

// postOAuthToken relays the authorization-code exchange to the identity
// provider; the service never sees long-lived IdP secrets.
func (s *Server) postOAuthToken(c *gin.Context) {
	if s.cfg.IdPIssuer == "" {
		abortWithError(c, cascade.Error{Code: cascade.Unauthenticated, Err: fmt.Errorf("no identity provider configured")})
		return
	}
	endpoint := strings.TrimSuffix(s.cfg.IdPIssuer, "/") + "/oauth2/token"
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, endpoint, c.Request.Body)
	if err != nil {
		abortWithError(c, cascade.Error{Code: cascade.Transient, Err: err})
		return
	}
	req.Header.Set("Content-Type", c.ContentType())
	client := http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		abortWithError(c, cascade.Error{Code: cascade.Transient, Err: err})
		return
	}
	defer resp.Body.Close()
	ba, err := io.ReadAll(resp.Body)
	if err != nil {
		abortWithError(c, cascade.Error{Code: cascade.Transient, Err: err})
		return
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), ba)
}

func (s *Server) getMe(c *gin.Context, ac auth.Context, realm string, _ []byte) {
	me := gin.H{
		"userId":         ac.UserID,
		"realm":          ac.Realm,
		"canRead":        ac.CanRead,
		"canWrite":       ac.CanWrite,
		"canIssueTicket": ac.CanIssueTicket,
	}
	if ac.Ticket != nil {
		me["ticket"] = ac.Ticket.ID
	}
	c.JSON(http.StatusOK, me)
}

type clientInitRequest struct {
	Pubkey string `json:"pubkey" binding:"required"`
}

// postClientInit starts the signed-client enrolment handshake.
func (s *Server) postClientInit(c *gin.Context) {
	body, err := readBody(c, s.cfg.NodeSizeLimit)
	if err != nil {
		abortWithError(c, err)
		return
	}
	var req clientInitRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	pa, err := s.enrolment.Init(c.Request.Context(), req.Pubkey)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":         pa.Code,
		"expiresAt":    pa.ExpiresAt,
		"pollInterval": auth.EnrolmentPollInterval.Seconds(),
	})
}

// getClientStatus is the enrolment poll endpoint; approval promotes the
// pubkey to authorized.
func (s *Server) getClientStatus(c *gin.Context) {
	pubkey := c.Query("pubkey")
	if pubkey == "" {
		abortWithError(c, cascade.Error{Code: cascade.MalformedRequest, Err: fmt.Errorf("pubkey query parameter is required")})
		return
	}
	pa, err := s.enrolment.Status(c.Request.Context(), pubkey)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved": pa.Approved, "expiresAt": pa.ExpiresAt})
}

type clientCompleteRequest struct {
	Pubkey string `json:"pubkey" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

// postClientComplete records the signed-in user's approval of a pending client.
func (s *Server) postClientComplete(c *gin.Context, ac auth.Context, _ string, body []byte) {
	if ac.UserID == "" {
		abortWithError(c, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("only user credentials can approve clients")})
		return
	}
	var req clientCompleteRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	if err := s.enrolment.Complete(c.Request.Context(), req.Pubkey, req.Code, ac.UserID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) getClients(c *gin.Context, ac auth.Context, _ string, _ []byte) {
	if ac.UserID == "" {
		abortWithError(c, cascade.Error{Code: cascade.Forbidden, Err: fmt.Errorf("only user credentials can list clients")})
		return
	}
	keys, err := s.pubkeys.ListByUser(c.Request.Context(), ac.UserID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": keys})
}

// deleteClient revokes one of the caller's enrolled pubkeys. The key travels
// URL-escaped because base64 may contain path separators.
func (s *Server) deleteClient(c *gin.Context, ac auth.Context, _ string, _ []byte) {
	pubkey, err := url.PathUnescape(c.Param("pubkey"))
	if err != nil {
		abortWithError(c, cascade.Error{Code: cascade.MalformedRequest, Err: err})
		return
	}
	pk, err := s.pubkeys.Lookup(c.Request.Context(), pubkey)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if pk == nil || pk.UserID != ac.UserID {
		abortWithError(c, cascade.Error{Code: cascade.NotFound, Err: fmt.Errorf("pubkey is not enrolled for this user")})
		return
	}
	if err := s.pubkeys.Revoke(c.Request.Context(), pubkey); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type tokenRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TTLSeconds  int64  `json:"ttlSeconds,omitempty"`
}

func (s *Server) postToken(c *gin.Context, ac auth.Context, _ string, body []byte) {
	var req tokenRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	tok, err := s.svc.CreateAgentToken(c.Request.Context(), ac, req.Name, req.Description, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tok)
}

func (s *Server) getTokens(c *gin.Context, ac auth.Context, _ string, _ []byte) {
	tokens, err := s.svc.ListAgentTokens(c.Request.Context(), ac)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

func (s *Server) deleteToken(c *gin.Context, ac auth.Context, _ string, _ []byte) {
	if err := s.svc.RevokeAgentToken(c.Request.Context(), ac, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type ticketRequest struct {
	ReadScope   []cascade.Key `json:"readScope,omitempty"`
	CommitQuota *int64        `json:"commitQuota,omitempty"`
	TTLSeconds  int64         `json:"ttlSeconds,omitempty"`
}

// postTicket issues a bounded delegated credential. A commitQuota, even 0
// (unlimited), grants one commit; its absence makes the ticket read-only.
func (s *Server) postTicket(c *gin.Context, ac auth.Context, _ string, body []byte) {
	var req ticketRequest
	if err := bindJSON(body, &req); err != nil {
		abortWithError(c, err)
		return
	}
	var grant *cascade.CommitGrant
	if req.CommitQuota != nil {
		grant = &cascade.CommitGrant{Quota: *req.CommitQuota}
	}
	tok, err := s.svc.IssueTicket(c.Request.Context(), ac, req.ReadScope, grant, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, tok)
}

func (s *Server) deleteTicket(c *gin.Context, ac auth.Context, _ string, _ []byte) {
	if err := s.svc.RevokeTicket(c.Request.Context(), ac, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
