package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-ivr/internal/ivr"
	"github.com/troikatech/voice-ivr/pkg/audit"
	apierrors "github.com/troikatech/voice-ivr/pkg/errors"
	"github.com/troikatech/voice-ivr/pkg/validation"
)

type MakeCallRequest struct {
	ToNumber      string `json:"to_number" form:"to_number"`
	WebhookURL    string `json:"webhook_url" form:"webhook_url"`
	CustomMessage string `json:"custom_message" form:"custom_message"`
}

// MakeCall dials every number in to_number (comma or newline separated).
func (h *Handler) MakeCall(c *gin.Context) {
	var req MakeCallRequest
	if err := c.ShouldBind(&req); err != nil {
		apierrors.BadRequest(c, err.Error())
		return
	}
	req.WebhookURL = strings.TrimSpace(req.WebhookURL)
	req.CustomMessage = strings.TrimSpace(req.CustomMessage)

	if strings.TrimSpace(req.ToNumber) == "" || req.WebhookURL == "" {
		apierrors.BadRequest(c, "Missing required parameters: to_number and webhook_url")
		return
	}

	result, err := h.dialer.Dial(c.Request.Context(), ivr.Batch{
		Numbers:       validation.SplitNumbers(req.ToNumber),
		WebhookURL:    req.WebhookURL,
		CustomMessage: req.CustomMessage,
	})
	switch {
	case errors.Is(err, ivr.ErrNoNumbers):
		apierrors.BadRequest(c, "Please provide at least one valid phone number")
		return
	case errors.Is(err, ivr.ErrInvalidWebhookURL):
		apierrors.BadRequest(c, err.Error())
		return
	case err != nil:
		apierrors.InternalError(c, err, h.logger)
		return
	}

	h.audit.FromContext(c, audit.Entry{Action: audit.ActionDial, ResourceType: "batch", Fields: []zap.Field{
		zap.Int("total", result.Total),
		zap.Int("failed", len(result.Failed)),
		zap.Bool("custom_message", req.CustomMessage != ""),
	}})
	c.JSON(http.StatusOK, result)
}
