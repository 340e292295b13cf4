package handler

import (
	"net/http"

	"tutorwise/internal/middleware"
	"tutorwise/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ListingHandler struct {
	delegation *service.DelegationService
	log        *zap.Logger
}

func NewListingHandler(delegation *service.DelegationService, log *zap.Logger) *ListingHandler {
	return &ListingHandler{delegation: delegation, log: log}
}

type DelegateRequest struct {
	DelegateActorID *uint `json:"delegate_actor_id"` // null clears the delegate
}

// GET /listings/:id/delegate
func (h *ListingHandler) GetDelegate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}
	delegate, err := h.delegation.ResolveDelegate(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err, "could not load listing")
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing_id": id, "delegate_actor_id": delegate})
}

// SetDelegate lets the listing owner route referral commission to another actor.
// PUT /listings/:id/delegate
func (h *ListingHandler) SetDelegate(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid listing id"})
		return
	}
	var req DelegateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.delegation.SetDelegate(c.Request.Context(), id, middleware.GetActorID(c), req.DelegateActorID); err != nil {
		respondError(c, h.log, err, "could not update delegate")
		return
	}
	c.JSON(http.StatusOK, gin.H{"listing_id": id, "delegate_actor_id": req.DelegateActorID})
}
