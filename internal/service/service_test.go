package service

import (
	"testing"
	"time"

	"tutorwise/config"
	"tutorwise/internal/auth"
	"tutorwise/internal/logging"
	"tutorwise/internal/repository"
	"tutorwise/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db         *gorm.DB
	cfg        *config.Config
	codes      *ReferralCodeService
	profiles   *ProfileService
	delegation *DelegationService
	commission *CommissionService
	ledger     *LedgerService
	fraud      *FraudService
	signer     *auth.CookieSigner
}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{AccessSecret: "test", AccessExpiry: time.Hour, Issuer: "tutorwise"},
		Attribution: config.AttributionConfig{
			CookieName:     "tw_ref",
			CookieSecret:   "cookie-secret",
			LinkWindow:     7 * 24 * time.Hour,
			SessionWindow:  30 * 24 * time.Hour,
			CodeAlphabet:   "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789",
			CodeLength:     7,
			MaxCodeRetries: 20,
			QueryParam:     "ref",
		},
		Commission: config.CommissionConfig{
			PlatformFeeRate: decimal.RequireFromString("0.10"),
			TierRates:       []decimal.Decimal{decimal.RequireFromString("0.10")},
			MaxDepth:        3,
			ClearingPeriod:  7 * 24 * time.Hour,
		},
		Fraud: config.FraudConfig{
			Window:           time.Hour,
			BaselineWindows:  24,
			ZThreshold:       3,
			MinVelocityCount: 5,
			MinClusterSize:   2,
			ScanDelay:        5 * time.Minute,
			MaxChainDepth:    32,
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testConfig()
	log := logging.Nop()

	codes, err := NewReferralCodeService(&cfg.Attribution, repository.NewReferralRepository(db), nil, log)
	require.NoError(t, err)
	signer := auth.NewCookieSigner(&cfg.Attribution)
	resolver := NewAttributionResolver(codes, DefaultAttributionSources(signer)...)

	fraud := NewFraudService(&cfg.Fraud,
		repository.NewFraudRepository(db),
		repository.NewSignupEventRepository(db),
		repository.NewActorRepository(db),
		repository.NewAuditRepository(db),
		log)

	return &testEnv{
		db:       db,
		cfg:      cfg,
		codes:    codes,
		profiles: NewProfileService(db, cfg, codes, resolver, log),
		delegation: NewDelegationService(
			repository.NewListingRepository(db),
			repository.NewActorRepository(db),
			repository.NewAuditRepository(db),
			log),
		commission: NewCommissionService(db, &cfg.Commission, fraud, log),
		ledger:     NewLedgerService(db, &cfg.Commission, log),
		fraud:      fraud,
		signer:     signer,
	}
}
