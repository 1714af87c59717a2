package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/instrumentation"
	service "github.com/mamadbah2/farmledger/internal/service/whatsapp"
	client "github.com/mamadbah2/farmledger/pkg/clients/whatsapp"
)

// WebhookHandler exposes the WhatsApp worker channel over HTTP.
type WebhookHandler struct {
	svc    service.MessagingService
	logger *zap.Logger
}

// NewWebhookHandler constructs the HTTP handler adapter.
func NewWebhookHandler(svc service.MessagingService, logger *zap.Logger) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{svc: svc, logger: logger}
}

// Verify answers Meta's subscription handshake.
func (h *WebhookHandler) Verify(c *gin.Context) {
	resp, err := h.svc.VerifyWebhookToken(c.Query("hub.mode"), c.Query("hub.verify_token"), c.Query("hub.challenge"))
	if err != nil {
		h.logger.Warn("webhook verification failed", zap.Error(err), zap.String("client_ip", c.ClientIP()))
		c.String(http.StatusForbidden, "verification failed")
		return
	}

	c.String(http.StatusOK, resp)
}

// Receive runs the worker commands of a callback. Once the payload parses the
// callback is acknowledged: Meta redelivers on non-2xx and stock commands
// carry no idempotency key, so a redelivery would record them twice.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		instrumentation.WebhookMessages.WithLabelValues("invalid").Inc()
		h.logger.Warn("invalid webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	outcome := "processed"
	if err := h.svc.HandleWebhook(c.Request.Context(), payload); err != nil {
		outcome = "reply_failed"
		h.logger.Error("failed processing webhook", zap.Error(err), zap.String("object", payload.Object))
	}
	instrumentation.WebhookMessages.WithLabelValues(outcome).Inc()

	c.Status(http.StatusOK)
}

// SendMessage lets an operator push a text to a worker or the manager.
func (h *WebhookHandler) SendMessage(c *gin.Context) {
	var req models.OutboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid outbound payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.svc.SendOutbound(c.Request.Context(), req); err != nil {
		h.logger.Error("failed sending outbound", zap.Error(err), zap.String("to", req.To))
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Temporary() {
			c.Header("Retry-After", "30")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "whatsapp temporarily unavailable"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to send message"})
		return
	}

	c.Status(http.StatusAccepted)
}
