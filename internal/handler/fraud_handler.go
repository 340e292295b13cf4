package handler

import (
	"net/http"

	"tutorwise/internal/middleware"
	"tutorwise/internal/repository"
	"tutorwise/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type FraudHandler struct {
	fraud *service.FraudService
	log   *zap.Logger
}

func NewFraudHandler(fraud *service.FraudService, log *zap.Logger) *FraudHandler {
	return &FraudHandler{fraud: fraud, log: log}
}

type ReviewRequest struct {
	ReviewState string `json:"review_state" binding:"required,oneof=investigating confirmed false_positive"`
}

type ScanRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GET /admin/fraud/signals?type=&severity=&review_state=
func (h *FraudHandler) ListSignals(c *gin.Context) {
	limit, offset := pagination(c)
	list, total, err := h.fraud.ListSignals(c.Request.Context(), repository.FraudSignalFilter{
		Type:        c.Query("type"),
		Severity:    c.Query("severity"),
		ReviewState: c.Query("review_state"),
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		respondError(c, h.log, err, "could not list fraud signals")
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": list, "total": total, "limit": limit, "offset": offset})
}

// PATCH /admin/fraud/signals/:id
func (h *FraudHandler) ReviewSignal(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal id"})
		return
	}
	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := h.fraud.ReviewSignal(c.Request.Context(), id, req.ReviewState, middleware.GetActorID(c))
	if err != nil {
		respondError(c, h.log, err, "could not update fraud signal")
		return
	}
	c.JSON(http.StatusOK, sig)
}

// Scan runs the detectors now: over the latest window, or over from/to when given.
// POST /admin/fraud/scan
func (h *FraudHandler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, err := parseTime(req.From)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from"})
		return
	}
	to, err := parseTime(req.To)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to"})
		return
	}
	var report service.ScanReport
	switch {
	case from.IsZero() && to.IsZero():
		report, err = h.fraud.Scan(c.Request.Context())
	case from.IsZero() || to.IsZero() || !from.Before(to):
		c.JSON(http.StatusBadRequest, gin.H{"error": "from and to must both be set and from must be before to"})
		return
	default:
		report, err = h.fraud.ScanWindow(c.Request.Context(), from, to)
	}
	if err != nil {
		respondError(c, h.log, err, "fraud scan failed")
		return
	}
	c.JSON(http.StatusOK, report)
}
