package middleware

import (
	"net/http"
	"strings"

	"tutorwise/config"
	"tutorwise/internal/auth"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer token and sets actor_id, email and is_admin in context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		claims, err := auth.ParseAccessToken(cfg, parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set("actor_id", claims.ActorID)
		c.Set("email", claims.Email)
		c.Set("is_admin", claims.IsAdmin)
		c.Next()
	}
}

// GetActorID returns the authenticated actor ID from context (must be used after AuthRequired).
func GetActorID(c *gin.Context) uint {
	v, _ := c.Get("actor_id")
	if v == nil {
		return 0
	}
	return v.(uint)
}
