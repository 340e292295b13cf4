package handler

import (
	"net/http"
	"strings"
	"time"

	"tutorwise/config"
	"tutorwise/internal/auth"
	"tutorwise/internal/domain"
	"tutorwise/internal/middleware"
	"tutorwise/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReferralHandler struct {
	codes  *service.ReferralCodeService
	signer *auth.CookieSigner
	cfg    *config.Config
	log    *zap.Logger
}

func NewReferralHandler(codes *service.ReferralCodeService, signer *auth.CookieSigner, cfg *config.Config, log *zap.Logger) *ReferralHandler {
	return &ReferralHandler{codes: codes, signer: signer, cfg: cfg, log: log}
}

// FollowLink records a referral link click in the attribution cookie and redirects.
// GET /a/:code?redirect=/path
func (h *ReferralHandler) FollowLink(c *gin.Context) {
	target := localRedirect(c.Query("redirect"))
	code := c.Param("code")
	_, ok, err := h.codes.ResolveCode(c.Request.Context(), code)
	if err != nil {
		h.log.Error("referral link lookup failed", zap.String("code", code), zap.Error(err))
	}
	if ok {
		h.setCookie(c, code, domain.CookieSourceLink)
	}
	c.Redirect(http.StatusFound, target)
}

// SessionTouch attributes a browsing session to a code seen outside a referral link.
// An existing valid attribution cookie is left alone.
// POST /auth/session-touch
func (h *ReferralHandler) SessionTouch(c *gin.Context) {
	var req struct {
		Code string `json:"code"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	code := req.Code
	if code == "" {
		code = c.Query(h.cfg.Attribution.QueryParam)
	}
	if raw, err := c.Cookie(h.cfg.Attribution.CookieName); err == nil {
		if claims, err := h.signer.Verify(raw); err == nil {
			c.JSON(http.StatusOK, gin.H{"attributed": true, "code": claims.Code, "source": claims.Source})
			return
		}
	}
	if code == "" {
		c.JSON(http.StatusOK, gin.H{"attributed": false})
		return
	}
	_, ok, err := h.codes.ResolveCode(c.Request.Context(), code)
	if err != nil {
		h.log.Error("session code lookup failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not resolve referral code"})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"attributed": false})
		return
	}
	h.setCookie(c, code, domain.CookieSourceSession)
	c.JSON(http.StatusOK, gin.H{"attributed": true, "code": code, "source": domain.CookieSourceSession})
}

// GetMyReferralCode returns the caller's referral code and share link, issuing the code on first use.
// GET /me/referral-code
func (h *ReferralHandler) GetMyReferralCode(c *gin.Context) {
	actorID := middleware.GetActorID(c)
	code, err := h.codes.GetOrCreateCode(c.Request.Context(), actorID)
	if err != nil {
		h.log.Error("referral code issue failed", zap.Uint("actor_id", actorID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not get referral code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": code,
		"link": strings.TrimRight(h.cfg.Server.PublicHost, "/") + "/a/" + code,
	})
}

func (h *ReferralHandler) setCookie(c *gin.Context, code, source string) {
	value, window, err := h.signer.Sign(code, source)
	if err != nil {
		h.log.Error("attribution cookie not signed", zap.Error(err))
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cfg.Attribution.CookieName, value, int(window/time.Second), "/",
		h.cfg.Attribution.CookieDomain, h.cfg.Attribution.CookieSecure, true)
}

// localRedirect keeps redirects on this site: only absolute paths are accepted.
func localRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return "/"
	}
	return target
}
