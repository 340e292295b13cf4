package handler

import (
	"errors"
	"net/http"

	"tutorwise/internal/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps domain errors to statuses; anything unknown is logged and hidden.
func respondError(c *gin.Context, log *zap.Logger, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrActorNotFound),
		errors.Is(err, domain.ErrListingNotFound),
		errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrSignalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotListingOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrSelfDelegation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrAlreadyReversed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error(msg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
