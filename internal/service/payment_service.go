package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tutorwise/config"
	"tutorwise/internal/domain"
	"tutorwise/internal/metrics"
	"tutorwise/internal/models"
	"tutorwise/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentEvent is the payment-completed message delivered by the payment gateway.
type PaymentEvent struct {
	PaymentRef  string    `json:"payment_id"`
	PayerID     uint      `json:"payer_id"`
	EarnerID    uint      `json:"principal_earner_id"`
	ListingID   uint      `json:"listing_id"`
	GrossCents  int64     `json:"gross_amount"`
	Currency    string    `json:"currency"`
	CompletedAt time.Time `json:"completed_at"`
}

func (e PaymentEvent) Validate() error {
	if e.GrossCents <= 0 {
		return domain.ErrInvalidAmount
	}
	if strings.TrimSpace(e.PaymentRef) == "" || len(e.PaymentRef) > 128 {
		return fmt.Errorf("%w: payment id is required", domain.ErrInvalidPayment)
	}
	if len(e.Currency) != 3 {
		return fmt.Errorf("%w: currency must be an ISO 4217 code", domain.ErrInvalidPayment)
	}
	if e.EarnerID == 0 || e.ListingID == 0 {
		return fmt.Errorf("%w: earner and listing are required", domain.ErrInvalidPayment)
	}
	return nil
}

// ProcessResult is the ledger of one payment.
type ProcessResult struct {
	Payment   models.CompletedPayment
	Entries   []models.CommissionEntry
	Duplicate bool
	Cycle     []uint
}

// CycleReporter receives referral cycles found while walking a chain.
type CycleReporter interface {
	ReportCycle(ctx context.Context, subjectID uint, cycle []uint) error
}

// CommissionService turns completed payments into ledger entries.
type CommissionService struct {
	db       *gorm.DB
	cfg      *config.CommissionConfig
	payments *repository.PaymentRepository
	ledger   *repository.LedgerRepository
	actors   *repository.ActorRepository
	listings *repository.ListingRepository
	settings *repository.SettingRepository
	audit    *repository.AuditRepository
	cycles   CycleReporter
	log      *zap.Logger
}

func NewCommissionService(
	db *gorm.DB,
	cfg *config.CommissionConfig,
	cycles CycleReporter,
	log *zap.Logger,
) *CommissionService {
	return &CommissionService{
		db:       db,
		cfg:      cfg,
		payments: repository.NewPaymentRepository(db),
		ledger:   repository.NewLedgerRepository(db),
		actors:   repository.NewActorRepository(db),
		listings: repository.NewListingRepository(db),
		settings: repository.NewSettingRepository(db),
		audit:    repository.NewAuditRepository(db),
		cycles:   cycles,
		log:      log,
	}
}

// Policy returns the configured rates with any system setting overrides applied.
func (s *CommissionService) Policy(ctx context.Context) (SplitPolicy, error) {
	cc := *s.cfg
	if v, ok, err := s.settings.Get(ctx, domain.SettingPlatformFeeRate); err != nil {
		return SplitPolicy{}, err
	} else if ok {
		fee, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return SplitPolicy{}, fmt.Errorf("setting %s: %w", domain.SettingPlatformFeeRate, err)
		}
		cc.PlatformFeeRate = fee
	}
	if v, ok, err := s.settings.Get(ctx, domain.SettingTierRates); err != nil {
		return SplitPolicy{}, err
	} else if ok {
		rates, err := config.ParseRates(v)
		if err != nil {
			return SplitPolicy{}, fmt.Errorf("setting %s: %w", domain.SettingTierRates, err)
		}
		cc.TierRates = rates
	}
	p := SplitPolicy{PlatformFeeRate: cc.PlatformFeeRate, TierRates: cc.ActiveTierRates()}
	return p, p.Validate()
}

// ProcessPayment computes and stores the ledger for a completed payment.
// The payment row, the split and every entry are written in one transaction.
// A repeated delivery returns the stored ledger with Duplicate set.
func (s *CommissionService) ProcessPayment(ctx context.Context, ev PaymentEvent) (*ProcessResult, error) {
	if err := ev.Validate(); err != nil {
		metrics.PaymentsProcessed.WithLabelValues("rejected").Inc()
		return nil, err
	}
	policy, err := s.Policy(ctx)
	if err != nil {
		return nil, fmt.Errorf("load commission policy: %w", err)
	}
	if ev.CompletedAt.IsZero() {
		ev.CompletedAt = time.Now().UTC()
	}

	var res ProcessResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment := models.CompletedPayment{
			PaymentRef:    ev.PaymentRef,
			PayerActorID:  ev.PayerID,
			EarnerActorID: ev.EarnerID,
			ListingID:     ev.ListingID,
			GrossCents:    ev.GrossCents,
			Currency:      strings.ToUpper(ev.Currency),
			CompletedAt:   ev.CompletedAt,
		}
		if err := s.payments.WithTx(tx).Create(ctx, &payment); err != nil {
			return err
		}

		listing, err := s.listings.WithTx(tx).GetByID(ctx, ev.ListingID)
		if err != nil {
			return err
		}
		if _, err := s.actors.WithTx(tx).GetByID(ctx, ev.EarnerID); err != nil {
			return fmt.Errorf("principal earner: %w", err)
		}

		walk, err := WalkReferrerChain(ctx, ev.EarnerID, len(policy.TierRates), s.actors.WithTx(tx).ReferrerOf)
		if err != nil {
			return err
		}
		lines, err := ComputeSplit(SplitInput{
			GrossCents:     ev.GrossCents,
			EarnerID:       ev.EarnerID,
			ListingOwnerID: listing.OwnerActorID,
			DelegateID:     DelegateOf(listing),
			Referrers:      walk.Referrers,
		}, policy)
		if err != nil {
			return err
		}

		entries := make([]models.CommissionEntry, 0, len(lines))
		for i, l := range lines {
			entries = append(entries, models.CommissionEntry{
				PaymentID:        payment.ID,
				LineNo:           i + 1,
				Kind:             domain.EntryKindOriginal,
				RecipientActorID: l.RecipientID,
				Role:             l.Role,
				Tier:             l.Tier,
				AmountCents:      l.AmountCents,
				Currency:         payment.Currency,
				RateApplied:      l.Rate.String(),
				State:            domain.EntryPending,
			})
		}
		if err := s.ledger.WithTx(tx).CreateEntries(ctx, entries, "payment_completed"); err != nil {
			return err
		}
		res = ProcessResult{Payment: payment, Entries: entries, Cycle: walk.Cycle}
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrDuplicatePayment):
		return s.existingLedger(ctx, ev)
	case errors.Is(err, domain.ErrListingNotFound), errors.Is(err, domain.ErrActorNotFound):
		metrics.PaymentsProcessed.WithLabelValues("rejected").Inc()
		s.log.Error("payment references missing data, ledger not written",
			zap.String("payment_ref", ev.PaymentRef),
			zap.Uint("listing_id", ev.ListingID),
			zap.Uint("earner_id", ev.EarnerID),
			zap.Error(err))
		return nil, err
	case err != nil:
		metrics.PaymentsProcessed.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.PaymentsProcessed.WithLabelValues("processed").Inc()
	for _, e := range res.Entries {
		metrics.CommissionCents.WithLabelValues(roleLabel(e.Role), e.Currency).Add(float64(e.AmountCents))
	}
	s.log.Info("payment ledger written",
		zap.String("payment_ref", ev.PaymentRef),
		zap.Uint("payment_id", res.Payment.ID),
		zap.Int64("gross_cents", ev.GrossCents),
		zap.Int("entries", len(res.Entries)))

	if len(res.Cycle) > 0 {
		s.log.Warn("referral cycle detected", zap.Uint("earner_id", ev.EarnerID), zap.Uints("cycle", res.Cycle))
		if s.cycles != nil {
			if err := s.cycles.ReportCycle(ctx, ev.EarnerID, res.Cycle); err != nil {
				s.log.Error("report referral cycle", zap.Error(err))
			}
		}
	}
	return &res, nil
}

// Ledger returns the stored entries of a payment.
func (s *CommissionService) Ledger(ctx context.Context, paymentID uint) (*ProcessResult, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return &ProcessResult{Payment: *p, Entries: entries}, nil
}

func (s *CommissionService) existingLedger(ctx context.Context, ev PaymentEvent) (*ProcessResult, error) {
	p, err := s.payments.GetByRef(ctx, ev.PaymentRef)
	if err != nil {
		return nil, err
	}
	entries, err := s.ledger.ListByPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	metrics.PaymentsProcessed.WithLabelValues("duplicate").Inc()
	fields := []zap.Field{zap.String("payment_ref", ev.PaymentRef), zap.Uint("payment_id", p.ID)}
	if p.GrossCents != ev.GrossCents || p.ListingID != ev.ListingID || p.EarnerActorID != ev.EarnerID {
		fields = append(fields, zap.Bool("payload_mismatch", true))
	}
	s.log.Warn("duplicate payment delivery", fields...)
	if err := s.audit.Log(ctx, &models.AuditLog{
		Action:     "payment.duplicate_delivery",
		Resource:   "payment",
		ResourceID: strconv.FormatUint(uint64(p.ID), 10),
		Metadata:   ev.PaymentRef,
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	return &ProcessResult{Payment: *p, Entries: entries, Duplicate: true}, nil
}

// roleLabel folds referrer tiers into one label to bound metric cardinality.
func roleLabel(role string) string {
	if domain.TierOfRole(role) > 0 {
		return "referrer"
	}
	return role
}
