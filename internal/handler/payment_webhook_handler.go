package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tutorwise/config"
	"tutorwise/internal/domain"
	"tutorwise/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 64 << 10

type PaymentWebhookHandler struct {
	commission *service.CommissionService
	cfg        *config.Config
	log        *zap.Logger
}

func NewPaymentWebhookHandler(commission *service.CommissionService, cfg *config.Config, log *zap.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{commission: commission, cfg: cfg, log: log}
}

// Handle consumes a payment-completed event and answers with its ledger.
// A repeated delivery answers 200 with the ledger stored the first time.
// POST /webhooks/payment-completed
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if h.cfg.Payment.WebhookSecret != "" {
		if !h.verifySignature(body, c.GetHeader("X-Webhook-Signature")) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}
	var ev service.PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.commission.ProcessPayment(c.Request.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidPayment):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrListingNotFound), errors.Is(err, domain.ErrActorNotFound):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.log.Error("payment event not processed", zap.String("payment_ref", ev.PaymentRef), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		}
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, ledgerResponse(res))
}

func (h *PaymentWebhookHandler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.cfg.Payment.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expected))
}

func ledgerResponse(res *service.ProcessResult) gin.H {
	var sum int64
	for _, e := range res.Entries {
		sum += e.AmountCents
	}
	out := gin.H{
		"payment":     res.Payment,
		"entries":     res.Entries,
		"duplicate":   res.Duplicate,
		"total_cents": sum,
	}
	if len(res.Cycle) > 0 {
		out["referral_cycle"] = res.Cycle
	}
	return out
}
