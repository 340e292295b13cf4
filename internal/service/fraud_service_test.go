package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tutorwise/internal/domain"
	"tutorwise/internal/models"
	"tutorwise/internal/repository"
	"tutorwise/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var scanFrom = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type signupSpec struct {
	actor     uint
	referrer  uint // 0 = organic
	codeOwner uint
	at        time.Time
	ip        string
	device    string
}

func addSignups(t *testing.T, db *gorm.DB, specs ...signupSpec) {
	t.Helper()
	for _, s := range specs {
		ev := models.SignupEvent{
			ActorID:           s.actor,
			Method:            domain.AttributionNone,
			ClientIP:          s.ip,
			DeviceFingerprint: s.device,
			CreatedAt:         s.at,
		}
		if s.referrer != 0 {
			ev.ReferrerActorID = testutil.Ptr(s.referrer)
			ev.Method = domain.AttributionURLParameter
		}
		if s.codeOwner != 0 {
			ev.CodeOwnerActorID = testutil.Ptr(s.codeOwner)
		}
		require.NoError(t, db.Create(&ev).Error)
	}
}

func signalsOf(t *testing.T, db *gorm.DB, typ string) []models.FraudSignal {
	t.Helper()
	var list []models.FraudSignal
	require.NoError(t, db.Where("type = ?", typ).Order("subject_actor_id ASC").Find(&list).Error)
	return list
}

func TestBaselineAndSeverity(t *testing.T) {
	mean, sd := Baseline([]int{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, sd, 1e-9)

	mean, sd = Baseline(nil)
	assert.Zero(t, mean)
	assert.Zero(t, sd)

	assert.Equal(t, domain.SeverityCritical, VelocitySeverity(6))
	assert.Equal(t, domain.SeverityHigh, VelocitySeverity(4.5))
	assert.Equal(t, domain.SeverityMedium, VelocitySeverity(3.2))
	assert.Equal(t, domain.SeverityLow, VelocitySeverity(2.5))

	assert.Equal(t, domain.SeverityCritical, ClusterSeverity(8))
	assert.Equal(t, domain.SeverityHigh, ClusterSeverity(6))
	assert.Equal(t, domain.SeverityMedium, ClusterSeverity(4))
	assert.Equal(t, domain.SeverityLow, ClusterSeverity(3))
}

func TestScan_VelocitySpike(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var specs []signupSpec
	next := uint(1000)
	add := func(referrer uint, at time.Time) {
		next++
		specs = append(specs, signupSpec{actor: next, referrer: referrer, at: at})
	}
	// Referrer 1: no history, 7 signups now.
	for i := 0; i < 7; i++ {
		add(1, scanFrom.Add(time.Duration(i)*time.Minute))
	}
	// Referrer 2: one signup in every earlier window, 5 now.
	for w := 1; w <= env.cfg.Fraud.BaselineWindows; w++ {
		add(2, scanFrom.Add(-time.Duration(w)*time.Hour+time.Minute))
	}
	for i := 0; i < 5; i++ {
		add(2, scanFrom.Add(time.Duration(10+i)*time.Minute))
	}
	// Referrer 3: steady high volume, not a spike.
	for w := 1; w <= env.cfg.Fraud.BaselineWindows; w++ {
		for i := 0; i < 6; i++ {
			add(3, scanFrom.Add(-time.Duration(w)*time.Hour+time.Duration(i)*time.Minute))
		}
	}
	for i := 0; i < 6; i++ {
		add(3, scanFrom.Add(time.Duration(20+i)*time.Minute))
	}
	// Referrer 4: below the minimum count.
	for i := 0; i < 3; i++ {
		add(4, scanFrom.Add(time.Duration(30+i)*time.Minute))
	}
	addSignups(t, env.db, specs...)

	report, err := env.fraud.ScanWindow(ctx, scanFrom, scanFrom.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Velocity)

	signals := signalsOf(t, env.db, domain.SignalVelocitySpike)
	require.Len(t, signals, 2)
	assert.Equal(t, uint(1), signals[0].SubjectActorID)
	assert.Equal(t, domain.SeverityCritical, signals[0].Severity)
	assert.Equal(t, uint(2), signals[1].SubjectActorID)
	assert.Equal(t, domain.SeverityMedium, signals[1].Severity)
	assert.True(t, scanFrom.Equal(signals[0].TimeBucket))

	var evidence map[string]interface{}
	require.NoError(t, json.Unmarshal(signals[1].Evidence, &evidence))
	assert.EqualValues(t, 5, evidence["count"])
	assert.EqualValues(t, 1, evidence["baseline_mean"])
	assert.EqualValues(t, 4, evidence["z_score"])
}

func TestScan_IdentityCluster(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	addSignups(t, env.db,
		signupSpec{actor: 11, referrer: 100, at: scanFrom.Add(time.Minute), ip: "203.0.113.9", device: "fpA"},
		signupSpec{actor: 12, referrer: 101, at: scanFrom.Add(2 * time.Minute), ip: "203.0.113.9", device: "fpA"},
		signupSpec{actor: 13, referrer: 101, at: scanFrom.Add(3 * time.Minute), ip: "203.0.113.9", device: "fpB"},
		// same referrer only: not a cluster
		signupSpec{actor: 14, referrer: 102, at: scanFrom.Add(4 * time.Minute), ip: "198.51.100.1"},
		signupSpec{actor: 15, referrer: 102, at: scanFrom.Add(5 * time.Minute), ip: "198.51.100.1"},
	)

	report, err := env.fraud.ScanWindow(ctx, scanFrom, scanFrom.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Clusters)

	signals := signalsOf(t, env.db, domain.SignalIdentityCluster)
	require.Len(t, signals, 2)
	assert.Equal(t, uint(100), signals[0].SubjectActorID)
	assert.Equal(t, uint(101), signals[1].SubjectActorID)
	// IP cluster: 3 signups + 2 * 2 device matches = 7
	assert.Equal(t, domain.SeverityHigh, signals[0].Severity)

	var evidence map[string]interface{}
	require.NoError(t, json.Unmarshal(signals[0].Evidence, &evidence))
	assert.Equal(t, "ip", evidence["match_kind"])
	assert.EqualValues(t, 7, evidence["strength"])
}

func TestScan_SelfReferralAndDedupe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	addSignups(t, env.db,
		signupSpec{actor: 21, codeOwner: 21, at: scanFrom.Add(time.Minute)},
		signupSpec{actor: 22, referrer: 22, codeOwner: 22, at: scanFrom.Add(2 * time.Minute)},
		signupSpec{actor: 23, codeOwner: 7, referrer: 7, at: scanFrom.Add(3 * time.Minute)},
	)

	report, err := env.fraud.ScanWindow(ctx, scanFrom, scanFrom.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, report.SelfReferrals)

	signals := signalsOf(t, env.db, domain.SignalSelfReferral)
	require.Len(t, signals, 2)
	assert.Equal(t, domain.SeverityMedium, signals[0].Severity)
	assert.Equal(t, domain.SeverityCritical, signals[1].Severity)

	// An overlapping re-run writes nothing new.
	report, err = env.fraud.ScanWindow(ctx, scanFrom.Add(10*time.Minute), scanFrom.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, report.SelfReferrals)
	assert.Len(t, signalsOf(t, env.db, domain.SignalSelfReferral), 2)
}

func TestScan_OverlappingWindowsAcrossBucketBoundary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	at := func(h, m int) time.Time { return time.Date(2026, 3, 10, h, m, 0, 0, time.UTC) }

	specs := []signupSpec{{actor: 41, codeOwner: 41, at: at(10, 20)}}
	// Referrer 9 spikes across 10:00; the 11:10 burst is a separate incident.
	next := uint(500)
	for _, ts := range []time.Time{at(9, 55), at(10, 10), at(10, 12), at(10, 14), at(10, 16), at(10, 18), at(10, 20)} {
		next++
		specs = append(specs, signupSpec{actor: next, referrer: 9, at: ts})
	}
	addSignups(t, env.db, specs...)

	first, err := env.fraud.ScanWindow(ctx, at(9, 30), at(10, 30))
	require.NoError(t, err)
	assert.Equal(t, 1, first.SelfReferrals)
	assert.Equal(t, 1, first.Velocity)

	second, err := env.fraud.ScanWindow(ctx, at(10, 5), at(11, 5))
	require.NoError(t, err)
	assert.Zero(t, second.SelfReferrals)
	assert.Zero(t, second.Velocity)

	self := signalsOf(t, env.db, domain.SignalSelfReferral)
	require.Len(t, self, 1)
	assert.True(t, at(10, 0).Equal(self[0].TimeBucket))

	spikes := signalsOf(t, env.db, domain.SignalVelocitySpike)
	require.Len(t, spikes, 1)
	assert.True(t, at(9, 0).Equal(spikes[0].TimeBucket))

	var later []signupSpec
	for i := 0; i < 6; i++ {
		next++
		later = append(later, signupSpec{actor: next, referrer: 9, at: at(11, 10+2*i)})
	}
	addSignups(t, env.db, later...)

	third, err := env.fraud.ScanWindow(ctx, at(11, 5), at(12, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, third.Velocity)
	assert.Len(t, signalsOf(t, env.db, domain.SignalVelocitySpike), 2)
}

func TestScan_CycleRaisedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.fraud.ReportCycle(ctx, 6, []uint{6, 5, 6}))
	env.fraud.nowFn = func() time.Time { return scanFrom.Add(48 * time.Hour) }
	require.NoError(t, env.fraud.ReportCycle(ctx, 5, []uint{5, 6, 5}))

	signals := signalsOf(t, env.db, domain.SignalReferralCycle)
	require.Len(t, signals, 1)
	assert.Equal(t, uint(5), signals[0].SubjectActorID)
}

func TestScan_ReferralCycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := testutil.CreateActor(t, env.db, "a@example.com", nil)
	b := testutil.CreateActor(t, env.db, "b@example.com", &a.ID)
	require.NoError(t, env.db.Model(&models.Actor{}).Where("id = ?", a.ID).Update("referred_by_actor_id", b.ID).Error)

	addSignups(t, env.db,
		signupSpec{actor: 31, referrer: a.ID, at: scanFrom.Add(time.Minute)},
		signupSpec{actor: 32, referrer: b.ID, at: scanFrom.Add(2 * time.Minute)},
	)

	env.fraud.nowFn = func() time.Time { return scanFrom.Add(time.Hour + env.cfg.Fraud.ScanDelay) }
	report, err := env.fraud.Scan(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Cycles, "one loop, one signal")

	signals := signalsOf(t, env.db, domain.SignalReferralCycle)
	require.Len(t, signals, 1)
	assert.Equal(t, a.ID, signals[0].SubjectActorID)
}

func TestScan_EmptyWindow(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.fraud.ScanWindow(context.Background(), scanFrom, scanFrom.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, report.Events)
}

func TestReviewSignal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	reviewer := testutil.CreateActor(t, env.db, "mod@example.com", nil)

	require.NoError(t, env.fraud.ReportCycle(ctx, 5, []uint{5, 6, 5}))
	list, total, err := env.fraud.ListSignals(ctx, repository.FraudSignalFilter{ReviewState: domain.ReviewOpen})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	id := list[0].ID

	sig, err := env.fraud.ReviewSignal(ctx, id, domain.ReviewInvestigating, reviewer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewInvestigating, sig.ReviewState)

	sig, err = env.fraud.ReviewSignal(ctx, id, domain.ReviewConfirmed, reviewer.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewConfirmed, sig.ReviewState)
	require.NotNil(t, sig.ReviewedBy)
	assert.Equal(t, reviewer.ID, *sig.ReviewedBy)

	_, err = env.fraud.ReviewSignal(ctx, id, domain.ReviewOpen, reviewer.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = env.fraud.ReviewSignal(ctx, 9999, domain.ReviewConfirmed, reviewer.ID)
	assert.ErrorIs(t, err, domain.ErrSignalNotFound)
}
