package router

import (
	"context"
	"net/http"
	"time"

	"tutorwise/config"
	"tutorwise/internal/auth"
	"tutorwise/internal/cache"
	"tutorwise/internal/handler"
	"tutorwise/internal/metrics"
	"tutorwise/internal/middleware"
	"tutorwise/internal/repository"
	"tutorwise/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services are the long-lived components shared by the HTTP layer and the scheduler.
type Services struct {
	Codes      *service.ReferralCodeService
	Profiles   *service.ProfileService
	Delegation *service.DelegationService
	Commission *service.CommissionService
	Ledger     *service.LedgerService
	Fraud      *service.FraudService
	Signer     *auth.CookieSigner
	Limiter    *middleware.RateLimiter
}

func NewServices(cfg *config.Config, db *gorm.DB, codeCache *cache.Client, log *zap.Logger) (*Services, error) {
	// Repositories
	actorRepo := repository.NewActorRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	listingRepo := repository.NewListingRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	fraudRepo := repository.NewFraudRepository(db)
	signupRepo := repository.NewSignupEventRepository(db)

	codes, err := service.NewReferralCodeService(&cfg.Attribution, referralRepo, codeCache, log.Named("codes"))
	if err != nil {
		return nil, err
	}
	signer := auth.NewCookieSigner(&cfg.Attribution)
	resolver := service.NewAttributionResolver(codes, service.DefaultAttributionSources(signer)...)
	fraud := service.NewFraudService(&cfg.Fraud, fraudRepo, signupRepo, actorRepo, auditRepo, log.Named("fraud"))

	return &Services{
		Codes:      codes,
		Profiles:   service.NewProfileService(db, cfg, codes, resolver, log.Named("profiles")),
		Delegation: service.NewDelegationService(listingRepo, actorRepo, auditRepo, log.Named("delegation")),
		Commission: service.NewCommissionService(db, &cfg.Commission, fraud, log.Named("commission")),
		Ledger:     service.NewLedgerService(db, &cfg.Commission, log.Named("ledger")),
		Fraud:      fraud,
		Signer:     signer,
		Limiter:    middleware.NewRateLimiter(cfg.Server.RateLimitRPM, cfg.Server.RateLimitBurst),
	}, nil
}

func Setup(cfg *config.Config, db *gorm.DB, codeCache *cache.Client, svc *Services, log *zap.Logger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log.Named("http")))
	r.Use(metrics.Middleware())

	r.GET("/healthz", health(db, codeCache))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.RateLimit(svc.Limiter))

	// Handlers
	referralHandler := handler.NewReferralHandler(svc.Codes, svc.Signer, cfg, log)
	authHandler := handler.NewAuthHandler(svc.Profiles, cfg, log)
	meHandler := handler.NewMeHandler(svc.Profiles, svc.Ledger)
	listingHandler := handler.NewListingHandler(svc.Delegation, log)
	webhookHandler := handler.NewPaymentWebhookHandler(svc.Commission, cfg, log)
	adminHandler := handler.NewAdminHandler(svc.Commission, svc.Ledger, log)
	fraudHandler := handler.NewFraudHandler(svc.Fraud, log)

	r.GET("/a/:code", referralHandler.FollowLink)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/session-touch", referralHandler.SessionTouch)

		api.POST("/webhooks/payment-completed", webhookHandler.Handle)
	}

	authMw := middleware.AuthRequired(&cfg.JWT)
	me := api.Group("/me", authMw)
	{
		me.GET("", meHandler.Get)
		me.GET("/referral-code", referralHandler.GetMyReferralCode)
		me.GET("/referrals", meHandler.GetMyReferrals)
		me.GET("/commissions", meHandler.GetMyCommissions)
	}

	listings := api.Group("/listings", authMw)
	{
		listings.GET("/:id/delegate", listingHandler.GetDelegate)
		listings.PUT("/:id/delegate", listingHandler.SetDelegate)
	}

	admin := api.Group("/admin", authMw, middleware.AdminRequired())
	{
		admin.GET("/ledger/export", adminHandler.ExportLedger)
		admin.GET("/ledger/entries/:id/history", adminHandler.EntryHistory)
		admin.GET("/payments/:id/ledger", adminHandler.PaymentLedger)
		admin.POST("/payments/:id/clearing", adminHandler.BeginClearing)
		admin.POST("/payments/:id/dispute", adminHandler.Dispute)
		admin.POST("/payments/:id/reinstate", adminHandler.Reinstate)
		admin.POST("/payments/:id/reverse", adminHandler.Reverse)
		admin.POST("/payouts", adminHandler.MarkPaidOut)

		admin.GET("/fraud/signals", fraudHandler.ListSignals)
		admin.PATCH("/fraud/signals/:id", fraudHandler.ReviewSignal)
		admin.POST("/fraud/scan", fraudHandler.Scan)
	}

	return r
}

func health(db *gorm.DB, codeCache *cache.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := gin.H{"database": "ok", "cache": "ok"}
		code := http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			status["database"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
		if codeCache == nil {
			status["cache"] = "disabled"
		} else if err := codeCache.Ping(ctx); err != nil {
			status["cache"] = "unavailable"
		}
		c.JSON(code, status)
	}
}
