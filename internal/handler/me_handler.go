package handler

import (
	"errors"
	"net/http"
	"strconv"

	"tutorwise/internal/domain"
	"tutorwise/internal/middleware"
	"tutorwise/internal/repository"
	"tutorwise/internal/service"

	"github.com/gin-gonic/gin"
)

type MeHandler struct {
	profiles *service.ProfileService
	ledger   *service.LedgerService
}

func NewMeHandler(profiles *service.ProfileService, ledger *service.LedgerService) *MeHandler {
	return &MeHandler{profiles: profiles, ledger: ledger}
}

// GET /me
func (h *MeHandler) Get(c *gin.Context) {
	a, err := h.profiles.Get(c.Request.Context(), middleware.GetActorID(c))
	if err != nil {
		if errors.Is(err, domain.ErrActorNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}
	c.JSON(http.StatusOK, actorResponse(a))
}

// GetMyReferrals lists the actors the caller referred directly.
// GET /me/referrals
func (h *MeHandler) GetMyReferrals(c *gin.Context) {
	limit, offset := pagination(c)
	list, err := h.profiles.Referred(c.Request.Context(), middleware.GetActorID(c), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list referrals"})
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, a := range list {
		out = append(out, gin.H{
			"id":                 a.ID,
			"display_name":       a.DisplayName,
			"attribution_method": a.AttributionMethod,
			"attributed_at":      a.AttributedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"referrals": out, "limit": limit, "offset": offset})
}

// GetMyCommissions exports the caller's own ledger lines.
// GET /me/commissions?from=&to=&state=
func (h *MeHandler) GetMyCommissions(c *gin.Context) {
	f, err := ledgerFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actorID := middleware.GetActorID(c)
	f.RecipientActorID = &actorID
	entries, err := h.ledger.Export(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not export commissions"})
		return
	}
	var total int64
	for _, e := range entries {
		total += e.AmountCents
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "total_cents": total})
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ledgerFilter parses from/to (RFC 3339 or YYYY-MM-DD), state, limit and offset.
func ledgerFilter(c *gin.Context) (repository.LedgerFilter, error) {
	var f repository.LedgerFilter
	var err error
	if f.From, err = parseTime(c.Query("from")); err != nil {
		return f, errors.New("invalid from")
	}
	if f.To, err = parseTime(c.Query("to")); err != nil {
		return f, errors.New("invalid to")
	}
	f.State = c.Query("state")
	f.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "500"))
	f.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f, nil
}
