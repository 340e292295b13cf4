package handler

import (
	"errors"
	"net/http"

	"tutorwise/config"
	"tutorwise/internal/domain"
	"tutorwise/internal/models"
	"tutorwise/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DeviceFingerprintHeader is set by the web and mobile clients.
const DeviceFingerprintHeader = "X-Device-Fingerprint"

type AuthHandler struct {
	profiles *service.ProfileService
	cfg      *config.Config
	log      *zap.Logger
}

func NewAuthHandler(profiles *service.ProfileService, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{profiles: profiles, cfg: cfg, log: log}
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"max=128"`
	CanEarn     *bool  `json:"can_earn"`
	CanRefer    *bool  `json:"can_refer"`
	ReferredBy  string `json:"referred_by" binding:"max=512"` // free text: a code or a pasted link
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register creates a profile and attributes it from ?ref=, the attribution cookie or referred_by.
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cookie, _ := c.Cookie(h.cfg.Attribution.CookieName)
	sc := service.SignupContext{
		QueryCode:         c.Query(h.cfg.Attribution.QueryParam),
		CookieValue:       cookie,
		ManualEntry:       req.ReferredBy,
		ClientIP:          c.ClientIP(),
		DeviceFingerprint: c.GetHeader(DeviceFingerprintHeader),
		UserAgent:         c.Request.UserAgent(),
	}
	in := service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		CanEarn:     boolOr(req.CanEarn, true),
		CanRefer:    boolOr(req.CanRefer, true),
	}
	a, token, err := h.profiles.Register(c.Request.Context(), in, sc)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEmailExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrInvalidCreds):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.log.Error("register failed", zap.String("email", req.Email), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}
	if cookie != "" {
		c.SetCookie(h.cfg.Attribution.CookieName, "", -1, "/", h.cfg.Attribution.CookieDomain, h.cfg.Attribution.CookieSecure, true)
	}
	c.JSON(http.StatusCreated, gin.H{"actor": actorResponse(a), "access_token": token})
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, token, err := h.profiles.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCreds) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"actor": actorResponse(a), "access_token": token})
}

func actorResponse(a *models.Actor) gin.H {
	return gin.H{
		"id":                   a.ID,
		"email":                a.Email,
		"display_name":         a.DisplayName,
		"can_earn":             a.CanEarn,
		"can_refer":            a.CanRefer,
		"referred_by_actor_id": a.ReferredByActorID,
		"attribution_method":   a.AttributionMethod,
		"attributed_at":        a.AttributedAt,
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
