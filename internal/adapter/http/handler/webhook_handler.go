package handler

import (
	"io"

	"rental-marketplace-core/internal/core/ports"
	"rental-marketplace-core/pkg/apperror"
	"rental-marketplace-core/pkg/response"

	"github.com/gin-gonic/gin"
)

// HeaderWebhookSignature carries the processor's HMAC-SHA256 hex digest of
// the raw request body.
const HeaderWebhookSignature = "X-Webhook-Signature"

// WebhookHandler receives inbound payment-processor events.
type WebhookHandler struct {
	reconciler ports.WebhookReconciler
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler ports.WebhookReconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Receive handles POST /api/v1/webhooks/payment.
// The body must stay raw: signature verification covers the exact bytes the
// processor sent, so no binding or re-serialization happens before Handle.
func (h *WebhookHandler) Receive(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.ErrMalformedEvent(err))
		return
	}

	signature := c.GetHeader(HeaderWebhookSignature)
	if signature == "" {
		response.Error(c, apperror.ErrInvalidSignature())
		return
	}

	outcome, err := h.reconciler.Handle(c.Request.Context(), rawBody, signature)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"outcome":    outcome.Code,
		"event_id":   outcome.EventID,
		"event_type": outcome.EventType,
	})
}
