package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"tutorwise/config"
	"tutorwise/internal/domain"
	"tutorwise/internal/metrics"
	"tutorwise/internal/models"
	"tutorwise/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const releaseBatchSize = 500

// LedgerService drives commission entries through the clearing lifecycle.
// Amounts are never edited; only state moves, and each move is logged.
type LedgerService struct {
	db       *gorm.DB
	cfg      *config.CommissionConfig
	ledger   *repository.LedgerRepository
	payments *repository.PaymentRepository
	audit    *repository.AuditRepository
	log      *zap.Logger
	nowFn    func() time.Time
}

func NewLedgerService(db *gorm.DB, cfg *config.CommissionConfig, log *zap.Logger) *LedgerService {
	return &LedgerService{
		db:       db,
		cfg:      cfg,
		ledger:   repository.NewLedgerRepository(db),
		payments: repository.NewPaymentRepository(db),
		audit:    repository.NewAuditRepository(db),
		log:      log,
		nowFn:    time.Now,
	}
}

// BeginClearing starts the holding period for a payment's pending entries.
func (s *LedgerService) BeginClearing(ctx context.Context, paymentID uint) (int, error) {
	clearsAt := s.nowFn().UTC().Add(s.cfg.ClearingPeriod)
	return s.transitionPayment(ctx, paymentID, []string{domain.EntryPending}, domain.EntryClearing, "clearing_started",
		map[string]interface{}{"clears_at": clearsAt})
}

// Reinstate returns disputed entries to clearing with a fresh holding period.
func (s *LedgerService) Reinstate(ctx context.Context, paymentID uint) (int, error) {
	clearsAt := s.nowFn().UTC().Add(s.cfg.ClearingPeriod)
	return s.transitionPayment(ctx, paymentID, []string{domain.EntryDisputed}, domain.EntryClearing, "dispute_resolved",
		map[string]interface{}{"clears_at": clearsAt})
}

// Dispute freezes every open entry of a payment.
func (s *LedgerService) Dispute(ctx context.Context, paymentID uint, reason string) (int, error) {
	if reason == "" {
		reason = "disputed"
	}
	return s.transitionPayment(ctx, paymentID,
		[]string{domain.EntryPending, domain.EntryClearing, domain.EntryAvailable}, domain.EntryDisputed, reason, nil)
}

// ReleaseCleared makes entries whose holding period ended available for payout.
func (s *LedgerService) ReleaseCleared(ctx context.Context, now time.Time) (int, error) {
	released := 0
	for {
		batch, err := s.ledger.ListClearable(ctx, now, releaseBatchSize)
		if err != nil {
			return released, err
		}
		for _, e := range batch {
			ok, err := s.ledger.Transition(ctx, e.ID, domain.EntryClearing, domain.EntryAvailable, "clearing_complete", nil)
			if err != nil {
				return released, err
			}
			if ok {
				released++
				metrics.LedgerTransitions.WithLabelValues(domain.EntryClearing, domain.EntryAvailable).Inc()
			}
		}
		if len(batch) < releaseBatchSize {
			break
		}
	}
	if released > 0 {
		s.log.Info("commission entries released", zap.Int("count", released))
	}
	return released, nil
}

// MarkPaidOut records that available entries were paid by a downstream payout
// batch. Pending clawback lines in the batch are settled the same way, as amounts
// recovered from the recipient. Either every entry moves or none does. An empty
// payoutRef gets a generated batch reference.
func (s *LedgerService) MarkPaidOut(ctx context.Context, entryIDs []uint, payoutRef string) (string, error) {
	if len(entryIDs) == 0 {
		return "", fmt.Errorf("%w: no entries", domain.ErrInvalidTransition)
	}
	if payoutRef == "" {
		payoutRef = "po_" + uuid.NewString()
	}
	ids := make([]uint, 0, len(entryIDs))
	for id := range uniqueIDs(entryIDs) {
		ids = append(ids, id)
	}
	moved := map[string]int{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		entries, err := repo.ListByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(entries) != len(ids) {
			return fmt.Errorf("%w: unknown entry in payout batch", domain.ErrInvalidTransition)
		}
		for _, e := range entries {
			if e.RecipientActorID == nil {
				return fmt.Errorf("%w: entry %d is not payable", domain.ErrInvalidTransition, e.ID)
			}
			from, reason := domain.EntryAvailable, "payout:"+payoutRef
			if e.Kind == domain.EntryKindReversal {
				from, reason = domain.EntryPending, "clawback_recovered:"+payoutRef
			}
			ok, err := repo.Transition(ctx, e.ID, from, domain.EntryPaidOut, reason,
				map[string]interface{}{"payout_ref": payoutRef})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: entry %d is %s", domain.ErrInvalidTransition, e.ID, e.State)
			}
			moved[from]++
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	for from, n := range moved {
		metrics.LedgerTransitions.WithLabelValues(from, domain.EntryPaidOut).Add(float64(n))
	}
	s.log.Info("commission entries paid out", zap.String("payout_ref", payoutRef), zap.Int("count", len(ids)))
	return payoutRef, nil
}

// Reverse appends a negative entry for every original line of the payment.
// Originals that were not paid out are marked reversed and their reversal
// lines are settled immediately. Paid-out originals keep their state and the
// reversal line starts pending, to be recovered from the recipient.
func (s *LedgerService) Reverse(ctx context.Context, paymentID uint, reason string, adminID *uint) ([]models.CommissionEntry, error) {
	if _, err := s.payments.GetByID(ctx, paymentID); err != nil {
		return nil, err
	}
	var reversals []models.CommissionEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		entries, err := repo.ListByPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Kind == domain.EntryKindReversal {
				return domain.ErrAlreadyReversed
			}
		}
		for _, e := range entries {
			origID := e.ID
			state := domain.EntryReversed
			if e.State == domain.EntryPaidOut {
				state = domain.EntryPending
			}
			reversals = append(reversals, models.CommissionEntry{
				PaymentID:         paymentID,
				LineNo:            domain.ReversalLineOffset + e.LineNo,
				Kind:              domain.EntryKindReversal,
				RecipientActorID:  e.RecipientActorID,
				Role:              e.Role,
				Tier:              e.Tier,
				AmountCents:       -e.AmountCents,
				Currency:          e.Currency,
				RateApplied:       e.RateApplied,
				State:             state,
				ReversalOfEntryID: &origID,
			})
		}
		if err := repo.CreateEntries(ctx, reversals, "reversal:"+reason); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrAlreadyReversed
			}
			return err
		}
		for _, e := range entries {
			if !domain.CanTransitionEntry(e.State, domain.EntryReversed) {
				continue
			}
			if _, err := repo.Transition(ctx, e.ID, e.State, domain.EntryReversed, "reversal:"+reason, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, &models.AuditLog{
		ActorID:    adminID,
		Action:     "payment.reversed",
		Resource:   "payment",
		ResourceID: strconv.FormatUint(uint64(paymentID), 10),
		Metadata:   reason,
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	s.log.Info("payment reversed", zap.Uint("payment_id", paymentID), zap.String("reason", reason), zap.Int("lines", len(reversals)))
	return reversals, nil
}

// Export lists ledger entries for downstream payout batching.
func (s *LedgerService) Export(ctx context.Context, f repository.LedgerFilter) ([]models.CommissionEntry, error) {
	return s.ledger.Export(ctx, f)
}

func (s *LedgerService) History(ctx context.Context, entryID uint) ([]models.CommissionStateEvent, error) {
	return s.ledger.ListStateEvents(ctx, entryID)
}

func (s *LedgerService) transitionPayment(ctx context.Context, paymentID uint, from []string, to, reason string, extra map[string]interface{}) (int, error) {
	if _, err := s.payments.GetByID(ctx, paymentID); err != nil {
		return 0, err
	}
	moved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		entries, err := repo.ListByPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Kind != domain.EntryKindOriginal || !contains(from, e.State) || !domain.CanTransitionEntry(e.State, to) {
				continue
			}
			ok, err := repo.Transition(ctx, e.ID, e.State, to, reason, extra)
			if err != nil {
				return err
			}
			if ok {
				moved++
				metrics.LedgerTransitions.WithLabelValues(e.State, to).Inc()
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if moved == 0 {
		return 0, fmt.Errorf("%w: no entries of payment %d can move to %s", domain.ErrInvalidTransition, paymentID, to)
	}
	return moved, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func uniqueIDs(ids []uint) map[uint]struct{} {
	m := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}
