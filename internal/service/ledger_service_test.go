package service

import (
	"context"
	"testing"
	"time"

	"tutorwise/internal/domain"
	"tutorwise/internal/models"
	"tutorwise/internal/repository"
	"tutorwise/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPaidLedger(t *testing.T, env *testEnv) (*ProcessResult, *models.Actor, *models.Actor) {
	t.Helper()
	r := testutil.CreateActor(t, env.db, "r@example.com", nil)
	e := testutil.CreateActor(t, env.db, "e@example.com", &r.ID)
	l := testutil.CreateListing(t, env.db, e.ID, nil)
	res, err := env.commission.ProcessPayment(context.Background(), paymentEvent("pay_L", e.ID, l.ID, 10000))
	require.NoError(t, err)
	return res, r, e
}

func TestLedger_ClearingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, r, _ := setupPaidLedger(t, env)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	env.ledger.nowFn = func() time.Time { return now }

	moved, err := env.ledger.BeginClearing(ctx, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, len(res.Entries), moved)

	_, err = env.ledger.BeginClearing(ctx, res.Payment.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	released, err := env.ledger.ReleaseCleared(ctx, now.Add(6*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, released)

	released, err = env.ledger.ReleaseCleared(ctx, now.Add(7*24*time.Hour+time.Second))
	require.NoError(t, err)
	assert.Equal(t, len(res.Entries), released)

	mine, err := env.ledger.Export(ctx, repository.LedgerFilter{RecipientActorID: &r.ID, State: domain.EntryAvailable})
	require.NoError(t, err)
	require.Len(t, mine, 1)

	ref, err := env.ledger.MarkPaidOut(ctx, []uint{mine[0].ID}, "")
	require.NoError(t, err)
	assert.Contains(t, ref, "po_")

	_, err = env.ledger.MarkPaidOut(ctx, []uint{mine[0].ID}, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	history, err := env.ledger.History(ctx, mine[0].ID)
	require.NoError(t, err)
	var states []string
	for _, h := range history {
		states = append(states, h.ToState)
	}
	assert.Equal(t, []string{domain.EntryPending, domain.EntryClearing, domain.EntryAvailable, domain.EntryPaidOut}, states)

	var stored models.CommissionEntry
	require.NoError(t, env.db.First(&stored, mine[0].ID).Error)
	assert.Equal(t, ref, stored.PayoutRef)
	assert.Equal(t, int64(900), stored.AmountCents)
}

func TestLedger_PayoutIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, _, _ := setupPaidLedger(t, env)

	_, err := env.ledger.MarkPaidOut(ctx, []uint{res.Entries[1].ID, res.Entries[2].ID}, "batch-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	var paid int64
	require.NoError(t, env.db.Model(&models.CommissionEntry{}).Where("state = ?", domain.EntryPaidOut).Count(&paid).Error)
	assert.Zero(t, paid)
}

func TestLedger_DisputeAndReinstate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, _, _ := setupPaidLedger(t, env)

	_, err := env.ledger.BeginClearing(ctx, res.Payment.ID)
	require.NoError(t, err)

	n, err := env.ledger.Dispute(ctx, res.Payment.ID, "chargeback")
	require.NoError(t, err)
	assert.Equal(t, len(res.Entries), n)

	released, err := env.ledger.ReleaseCleared(ctx, time.Now().UTC().Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, released, "disputed entries are frozen")

	n, err = env.ledger.Reinstate(ctx, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, len(res.Entries), n)
}

func TestLedger_Reverse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, r, _ := setupPaidLedger(t, env)
	admin := testutil.CreateActor(t, env.db, "admin@example.com", nil)

	// Pay the referrer before the reversal.
	_, err := env.ledger.BeginClearing(ctx, res.Payment.ID)
	require.NoError(t, err)
	_, err = env.ledger.ReleaseCleared(ctx, time.Now().UTC().Add(8*24*time.Hour))
	require.NoError(t, err)
	tier1 := entryByRole(res.Entries, domain.ReferrerTierRole(1))
	_, err = env.ledger.MarkPaidOut(ctx, []uint{tier1.ID}, "batch-7")
	require.NoError(t, err)

	reversals, err := env.ledger.Reverse(ctx, res.Payment.ID, "refund", &admin.ID)
	require.NoError(t, err)
	require.Len(t, reversals, len(res.Entries))

	all, err := repository.NewLedgerRepository(env.db).ListByPayment(ctx, res.Payment.ID)
	require.NoError(t, err)
	assert.Zero(t, entrySum(all), "originals and reversals cancel out")

	for _, e := range all {
		switch {
		case e.Kind == domain.EntryKindReversal && e.RecipientActorID != nil && *e.RecipientActorID == r.ID:
			assert.Equal(t, domain.EntryPending, e.State, "paid-out commission is clawed back")
			assert.Equal(t, int64(-900), e.AmountCents)
			require.NotNil(t, e.ReversalOfEntryID)
			assert.Equal(t, tier1.ID, *e.ReversalOfEntryID)
		case e.Kind == domain.EntryKindReversal:
			assert.Equal(t, domain.EntryReversed, e.State)
		case e.ID == tier1.ID:
			assert.Equal(t, domain.EntryPaidOut, e.State)
		default:
			assert.Equal(t, domain.EntryReversed, e.State)
		}
	}

	_, err = env.ledger.Reverse(ctx, res.Payment.ID, "refund", &admin.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)

	// The clawback settles through the next payout batch; settled reversal lines do not.
	var clawback, settled models.CommissionEntry
	for _, e := range all {
		switch {
		case e.Kind == domain.EntryKindReversal && e.State == domain.EntryPending:
			clawback = e
		case e.Kind == domain.EntryKindReversal && e.RecipientActorID != nil:
			settled = e
		}
	}
	require.NotZero(t, clawback.ID)
	require.NotZero(t, settled.ID)
	_, err = env.ledger.MarkPaidOut(ctx, []uint{clawback.ID, settled.ID}, "batch-8")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	ref, err := env.ledger.MarkPaidOut(ctx, []uint{clawback.ID}, "batch-8")
	require.NoError(t, err)
	assert.Equal(t, "batch-8", ref)
	history, err := env.ledger.History(ctx, clawback.ID)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, domain.EntryPending, last.FromState)
	assert.Equal(t, domain.EntryPaidOut, last.ToState)
	assert.Equal(t, "clawback_recovered:batch-8", last.Reason)

	_, err = env.ledger.Reverse(ctx, 31337, "refund", &admin.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}
