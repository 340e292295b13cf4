package handler

import (
	"net/http"
	"strconv"

	"tutorwise/internal/middleware"
	"tutorwise/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminHandler exposes ledger operations to operators and the payout batcher.
type AdminHandler struct {
	commission *service.CommissionService
	ledger     *service.LedgerService
	log        *zap.Logger
}

func NewAdminHandler(commission *service.CommissionService, ledger *service.LedgerService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{commission: commission, ledger: ledger, log: log}
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"max=200"`
}

type PayoutRequest struct {
	EntryIDs  []uint `json:"entry_ids" binding:"required,min=1"`
	PayoutRef string `json:"payout_ref" binding:"max=64"`
}

// GET /admin/ledger/export?from=&to=&state=&recipient_actor_id=
func (h *AdminHandler) ExportLedger(c *gin.Context) {
	f, err := ledgerFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if raw := c.Query("recipient_actor_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recipient_actor_id"})
			return
		}
		rid := uint(id)
		f.RecipientActorID = &rid
	}
	entries, err := h.ledger.Export(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err, "could not export ledger")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// GET /admin/payments/:id/ledger
func (h *AdminHandler) PaymentLedger(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	res, err := h.commission.Ledger(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "could not load ledger")
		return
	}
	c.JSON(http.StatusOK, ledgerResponse(res))
}

// POST /admin/payments/:id/clearing
func (h *AdminHandler) BeginClearing(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	n, err := h.ledger.BeginClearing(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "could not start clearing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": id, "moved": n})
}

// POST /admin/payments/:id/dispute
func (h *AdminHandler) Dispute(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	var req reasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	n, err := h.ledger.Dispute(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondError(c, h.log, err, "could not dispute payment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": id, "moved": n})
}

// POST /admin/payments/:id/reinstate
func (h *AdminHandler) Reinstate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	n, err := h.ledger.Reinstate(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "could not reinstate payment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": id, "moved": n})
}

// Reverse appends negative lines for a refunded or charged-back payment.
// POST /admin/payments/:id/reverse
func (h *AdminHandler) Reverse(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	var req reasonRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Reason == "" {
		req.Reason = "refund"
	}
	adminID := middleware.GetActorID(c)
	lines, err := h.ledger.Reverse(c.Request.Context(), id, req.Reason, &adminID)
	if err != nil {
		respondError(c, h.log, err, "could not reverse payment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_id": id, "reversal_entries": lines})
}

// MarkPaidOut is called by the payout batcher once funds left the platform.
// POST /admin/payouts
func (h *AdminHandler) MarkPaidOut(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ref, err := h.ledger.MarkPaidOut(c.Request.Context(), req.EntryIDs, req.PayoutRef)
	if err != nil {
		respondError(c, h.log, err, "could not record payout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout_ref": ref})
}

// GET /admin/ledger/entries/:id/history
func (h *AdminHandler) EntryHistory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return
	}
	events, err := h.ledger.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "could not load history")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry_id": id, "events": events})
}
