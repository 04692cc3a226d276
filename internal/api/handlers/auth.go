package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/voice-ivr/pkg/audit"
	"github.com/troikatech/voice-ivr/pkg/errors"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login exchanges the admin credentials for an access token.
func (h *Handler) Login(c *gin.Context) {
	if !h.cfg.AdminAuthEnabled || h.tokens == nil {
		errors.ServiceUnavailable(c, "admin authentication is disabled")
		return
	}

	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}

	if !h.creds.Check(req.Username, req.Password) {
		h.audit.FromContext(c, audit.Entry{Actor: req.Username, Action: audit.ActionLoginFailed, ResourceType: "session"})
		errors.Unauthorized(c, "invalid credentials")
		return
	}

	token, expiresAt, err := h.tokens.Issue(req.Username)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	h.audit.FromContext(c, audit.Entry{Actor: req.Username, Action: audit.ActionLogin, ResourceType: "session"})
	c.JSON(http.StatusOK, AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	})
}
