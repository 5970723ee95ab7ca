package handler

import (
	"errors"
	"io"
	"net/http"

	"mentorbook/internal/service"
	"mentorbook/pkg/payment"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" on gateway deliveries.
const SignatureHeader = "Payment-Signature"

const maxWebhookBody = 1 << 20

type PaymentWebhookHandler struct {
	gateway    payment.Gateway
	settlement *service.SettlementService
	log        *zap.Logger
}

func NewPaymentWebhookHandler(gateway payment.Gateway, settlement *service.SettlementService, log *zap.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{gateway: gateway, settlement: settlement, log: log.Named("http.webhook")}
}

// Handle verifies a gateway delivery and applies it. Any non-2xx answer makes
// the gateway retry, so processing failures return 500.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ev, err := h.gateway.VerifyAndParseWebhook(body, c.GetHeader(SignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.log.Warn("webhook signature rejected", zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
			return
		}
		h.log.Warn("malformed webhook", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}
	if err := h.settlement.HandleEvent(c.Request.Context(), ev); err != nil {
		h.log.Error("webhook processing failed", zap.String("event_id", ev.ID), zap.String("type", ev.Type), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
