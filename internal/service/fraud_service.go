package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"tutorwise/config"
	"tutorwise/internal/domain"
	"tutorwise/internal/metrics"
	"tutorwise/internal/models"
	"tutorwise/internal/repository"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// ScanReport counts the signals written by one scan. Signals already present
// for the same subject, type and bucket are not counted.
type ScanReport struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	Events        int       `json:"events"`
	Velocity      int       `json:"velocity_spikes"`
	Clusters      int       `json:"identity_clusters"`
	SelfReferrals int       `json:"self_referrals"`
	Cycles        int       `json:"referral_cycles"`
}

// FraudService scans signup activity and raises advisory signals. It never
// touches payments or the ledger.
type FraudService struct {
	cfg     *config.FraudConfig
	signals *repository.FraudRepository
	signups *repository.SignupEventRepository
	actors  *repository.ActorRepository
	audit   *repository.AuditRepository
	log     *zap.Logger
	nowFn   func() time.Time
}

func NewFraudService(
	cfg *config.FraudConfig,
	signals *repository.FraudRepository,
	signups *repository.SignupEventRepository,
	actors *repository.ActorRepository,
	audit *repository.AuditRepository,
	log *zap.Logger,
) *FraudService {
	return &FraudService{
		cfg:     cfg,
		signals: signals,
		signups: signups,
		actors:  actors,
		audit:   audit,
		log:     log,
		nowFn:   time.Now,
	}
}

// Scan inspects the most recent window, trailing the clock by the scan delay.
func (s *FraudService) Scan(ctx context.Context) (ScanReport, error) {
	to := s.nowFn().UTC().Add(-s.cfg.ScanDelay)
	return s.ScanWindow(ctx, to.Add(-s.cfg.Window), to)
}

// ScanWindow runs every detector over signups in [from, to).
func (s *FraudService) ScanWindow(ctx context.Context, from, to time.Time) (ScanReport, error) {
	start := time.Now()
	defer func() { metrics.FraudScanDuration.Observe(time.Since(start).Seconds()) }()

	report := ScanReport{From: from, To: to}
	events, err := s.signups.ListBetween(ctx, from, to)
	if err != nil {
		return report, err
	}
	report.Events = len(events)
	if len(events) == 0 {
		return report, nil
	}

	if report.Velocity, err = s.detectVelocity(ctx, events, from, to); err != nil {
		return report, fmt.Errorf("velocity: %w", err)
	}
	if report.Clusters, err = s.detectClusters(ctx, events); err != nil {
		return report, fmt.Errorf("clusters: %w", err)
	}
	if report.SelfReferrals, err = s.detectSelfReferrals(ctx, events); err != nil {
		return report, fmt.Errorf("self referral: %w", err)
	}
	if report.Cycles, err = s.detectCycles(ctx, events); err != nil {
		return report, fmt.Errorf("cycles: %w", err)
	}

	s.log.Info("fraud scan finished",
		zap.Time("from", from), zap.Time("to", to),
		zap.Int("events", report.Events),
		zap.Int("velocity", report.Velocity),
		zap.Int("clusters", report.Clusters),
		zap.Int("self_referrals", report.SelfReferrals),
		zap.Int("cycles", report.Cycles))
	return report, nil
}

// VelocitySeverity maps a z-score to a severity.
func VelocitySeverity(z float64) string {
	switch {
	case z >= 6:
		return domain.SeverityCritical
	case z >= 4.5:
		return domain.SeverityHigh
	case z >= 3:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// ClusterSeverity maps a cluster strength (size + 2 per device-fingerprint match) to a severity.
func ClusterSeverity(strength int) string {
	switch {
	case strength >= 8:
		return domain.SeverityCritical
	case strength >= 6:
		return domain.SeverityHigh
	case strength >= 4:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

// Baseline returns the mean and population standard deviation of counts.
func Baseline(counts []int) (mean, stddev float64) {
	if len(counts) == 0 {
		return 0, 0
	}
	for _, c := range counts {
		mean += float64(c)
	}
	mean /= float64(len(counts))
	for _, c := range counts {
		d := float64(c) - mean
		stddev += d * d
	}
	return mean, math.Sqrt(stddev / float64(len(counts)))
}

func (s *FraudService) detectVelocity(ctx context.Context, events []models.SignupEvent, from, to time.Time) (int, error) {
	byReferrer := map[uint][]uint{}
	first := map[uint]time.Time{}
	for _, e := range events {
		if e.ReferrerActorID == nil {
			continue
		}
		ref := *e.ReferrerActorID
		byReferrer[ref] = append(byReferrer[ref], e.ActorID)
		if t, ok := first[ref]; !ok || e.CreatedAt.Before(t) {
			first[ref] = e.CreatedAt
		}
	}
	var candidates []uint
	for ref, signups := range byReferrer {
		if len(signups) >= s.cfg.MinVelocityCount {
			candidates = append(candidates, ref)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })

	windows := s.cfg.BaselineWindows
	if windows <= 0 {
		windows = 1
	}
	histStart := from.Add(-time.Duration(windows) * s.cfg.Window)
	history, err := s.signups.ListByReferrersBetween(ctx, candidates, histStart, from)
	if err != nil {
		return 0, err
	}
	perWindow := map[uint][]int{}
	for _, ref := range candidates {
		perWindow[ref] = make([]int, windows)
	}
	for _, e := range history {
		idx := int(e.CreatedAt.Sub(histStart) / s.cfg.Window)
		if idx >= 0 && idx < windows {
			perWindow[*e.ReferrerActorID][idx]++
		}
	}

	raised := 0
	for _, ref := range candidates {
		count := len(byReferrer[ref])
		mean, stddev := Baseline(perWindow[ref])
		// A flat history still needs some spread, or any first signup would be infinite.
		sigma := math.Max(stddev, 1)
		z := (float64(count) - mean) / sigma
		if z < s.cfg.ZThreshold {
			continue
		}
		evidence := map[string]interface{}{
			"window_from":      from,
			"window_to":        to,
			"count":            count,
			"baseline_windows": windows,
			"baseline_mean":    round2(mean),
			"baseline_stddev":  round2(stddev),
			"z_score":          round2(z),
			"signup_actor_ids": byReferrer[ref],
		}
		ok, err := s.raiseGroup(ctx, ref, domain.SignalVelocitySpike, VelocitySeverity(z), s.bucketOf(first[ref]), evidence, byReferrer[ref])
		if err != nil {
			return raised, err
		}
		if ok {
			raised++
		}
	}
	return raised, nil
}

type cluster struct {
	kind          string
	key           string
	actorIDs      []uint
	referrers     []uint
	deviceMatches int
	first         time.Time
}

func (c cluster) strength() int { return len(c.actorIDs) + 2*c.deviceMatches }

func (s *FraudService) detectClusters(ctx context.Context, events []models.SignupEvent) (int, error) {
	byIP := map[string][]models.SignupEvent{}
	byDevice := map[string][]models.SignupEvent{}
	for _, e := range events {
		if e.ClientIP != "" {
			byIP[e.ClientIP] = append(byIP[e.ClientIP], e)
		}
		if e.DeviceFingerprint != "" {
			byDevice[e.DeviceFingerprint] = append(byDevice[e.DeviceFingerprint], e)
		}
	}

	minSize := s.cfg.MinClusterSize
	if minSize < 2 {
		minSize = 2
	}
	var clusters []cluster
	collect := func(kind string, groups map[string][]models.SignupEvent) {
		for key, group := range groups {
			c := buildCluster(kind, key, group)
			if len(c.referrers) >= minSize {
				clusters = append(clusters, c)
			}
		}
	}
	collect("device", byDevice)
	collect("ip", byIP)

	// Each referrer is flagged once per bucket, with its strongest cluster.
	strongest := map[uint]cluster{}
	for _, c := range clusters {
		for _, ref := range c.referrers {
			cur, ok := strongest[ref]
			if !ok || c.strength() > cur.strength() || (c.strength() == cur.strength() && c.key < cur.key) {
				strongest[ref] = c
			}
		}
	}
	refs := make([]uint, 0, len(strongest))
	for ref := range strongest {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })

	raised := 0
	for _, ref := range refs {
		c := strongest[ref]
		evidence := map[string]interface{}{
			"match_kind":       c.kind,
			"match_key":        c.key,
			"signup_actor_ids": c.actorIDs,
			"referrers":        c.referrers,
			"device_matches":   c.deviceMatches,
			"strength":         c.strength(),
		}
		ok, err := s.raiseGroup(ctx, ref, domain.SignalIdentityCluster, ClusterSeverity(c.strength()), s.bucketOf(c.first), evidence, c.actorIDs)
		if err != nil {
			return raised, err
		}
		if ok {
			raised++
		}
	}
	return raised, nil
}

func buildCluster(kind, key string, group []models.SignupEvent) cluster {
	c := cluster{kind: kind, key: key}
	refSeen := map[uint]bool{}
	devices := map[string]int{}
	for _, e := range group {
		c.actorIDs = append(c.actorIDs, e.ActorID)
		if c.first.IsZero() || e.CreatedAt.Before(c.first) {
			c.first = e.CreatedAt
		}
		if e.ReferrerActorID != nil && !refSeen[*e.ReferrerActorID] {
			refSeen[*e.ReferrerActorID] = true
			c.referrers = append(c.referrers, *e.ReferrerActorID)
		}
		if e.DeviceFingerprint != "" {
			devices[e.DeviceFingerprint]++
		}
	}
	for _, e := range group {
		if e.DeviceFingerprint != "" && devices[e.DeviceFingerprint] > 1 {
			c.deviceMatches++
		}
	}
	sort.Slice(c.referrers, func(i, j int) bool { return c.referrers[i] < c.referrers[j] })
	return c
}

func (s *FraudService) detectSelfReferrals(ctx context.Context, events []models.SignupEvent) (int, error) {
	raised := 0
	for _, e := range events {
		selfCode := e.CodeOwnerActorID != nil && *e.CodeOwnerActorID == e.ActorID
		selfBound := e.ReferrerActorID != nil && *e.ReferrerActorID == e.ActorID
		if !selfCode && !selfBound {
			continue
		}
		severity := domain.SeverityMedium
		if selfBound {
			// The resolver should have discarded this; a stored self-binding means a race got through.
			severity = domain.SeverityCritical
		}
		evidence := map[string]interface{}{
			"signup_event_id": e.ID,
			"claimed_code":    e.ClaimedCode,
			"method":          e.Method,
			"bound_to_self":   selfBound,
			"client_ip":       e.ClientIP,
		}
		ok, err := s.raise(ctx, e.ActorID, domain.SignalSelfReferral, severity, s.bucketOf(e.CreatedAt), evidence)
		if err != nil {
			return raised, err
		}
		if ok {
			raised++
		}
	}
	return raised, nil
}

func (s *FraudService) detectCycles(ctx context.Context, events []models.SignupEvent) (int, error) {
	seen := map[uint]bool{}
	raised := 0
	for _, e := range events {
		if e.ReferrerActorID == nil || seen[*e.ReferrerActorID] {
			continue
		}
		seen[*e.ReferrerActorID] = true
		walk, err := WalkReferrerChain(ctx, *e.ReferrerActorID, s.maxChainDepth(), s.actors.ReferrerOf)
		if err != nil {
			return raised, err
		}
		if len(walk.Cycle) == 0 {
			continue
		}
		ok, err := s.raiseCycle(ctx, walk.Cycle, "scan")
		if err != nil {
			return raised, err
		}
		if ok {
			raised++
		}
	}
	return raised, nil
}

// ReportCycle records a cycle found outside the scan, e.g. while computing a split.
func (s *FraudService) ReportCycle(ctx context.Context, subjectID uint, cycle []uint) error {
	source := "commission_calculator:earner=" + strconv.FormatUint(uint64(subjectID), 10)
	_, err := s.raiseCycle(ctx, cycle, source)
	return err
}

// Bindings are write-once, so a cycle never goes away. Every cycle signal shares one bucket
// and a loop is raised once, under its smallest member.
var cycleBucket = time.Unix(0, 0).UTC()

func (s *FraudService) raiseCycle(ctx context.Context, cycle []uint, source string) (bool, error) {
	subject := cycle[0]
	for _, id := range cycle {
		if id < subject {
			subject = id
		}
	}
	evidence := map[string]interface{}{
		"cycle":       cycle,
		"detected_by": source,
	}
	return s.raise(ctx, subject, domain.SignalReferralCycle, domain.SeverityHigh, cycleBucket, evidence)
}

func (s *FraudService) bucketOf(t time.Time) time.Time {
	return t.UTC().Truncate(s.cfg.Window)
}

// raiseGroup raises a signal built from a set of signups. Overlapping scans can see the
// same incident starting in adjacent buckets, so a signal for the same subject and type
// in a neighbouring bucket that shares any signup suppresses this one.
func (s *FraudService) raiseGroup(ctx context.Context, subject uint, typ, severity string, bucket time.Time, evidence map[string]interface{}, members []uint) (bool, error) {
	near, err := s.signals.ListForSubject(ctx, subject, typ, bucket.Add(-s.cfg.Window), bucket.Add(s.cfg.Window))
	if err != nil {
		return false, err
	}
	for _, prev := range near {
		if prev.TimeBucket.Equal(bucket) {
			continue
		}
		if sharesSignup(prev.Evidence, members) {
			return false, nil
		}
	}
	return s.raise(ctx, subject, typ, severity, bucket, evidence)
}

func sharesSignup(raw datatypes.JSON, members []uint) bool {
	var ev struct {
		SignupActorIDs []uint `json:"signup_actor_ids"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil {
		return false
	}
	seen := make(map[uint]bool, len(ev.SignupActorIDs))
	for _, id := range ev.SignupActorIDs {
		seen[id] = true
	}
	for _, id := range members {
		if seen[id] {
			return true
		}
	}
	return false
}

func (s *FraudService) raise(ctx context.Context, subject uint, typ, severity string, bucket time.Time, evidence map[string]interface{}) (bool, error) {
	raw, err := json.Marshal(evidence)
	if err != nil {
		return false, err
	}
	signal := &models.FraudSignal{
		SubjectActorID: subject,
		Type:           typ,
		TimeBucket:     bucket,
		Severity:       severity,
		Evidence:       datatypes.JSON(raw),
		ReviewState:    domain.ReviewOpen,
	}
	inserted, err := s.signals.Insert(ctx, signal)
	if err != nil || !inserted {
		return false, err
	}
	metrics.FraudSignalsRaised.WithLabelValues(typ, severity).Inc()
	s.log.Warn("fraud signal raised",
		zap.Uint("signal_id", signal.ID),
		zap.Uint("subject_actor_id", subject),
		zap.String("type", typ),
		zap.String("severity", severity))
	return true, nil
}

func (s *FraudService) maxChainDepth() int {
	if s.cfg.MaxChainDepth <= 0 {
		return 32
	}
	return s.cfg.MaxChainDepth
}

// ReviewSignal moves a signal through the review workflow.
func (s *FraudService) ReviewSignal(ctx context.Context, id uint, to string, reviewerID uint) (*models.FraudSignal, error) {
	sig, err := s.signals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransitionReview(sig.ReviewState, to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, sig.ReviewState, to)
	}
	ok, err := s.signals.UpdateReview(ctx, id, sig.ReviewState, to, reviewerID, s.nowFn().UTC())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: signal changed concurrently", domain.ErrInvalidTransition)
	}
	if err := s.audit.Log(ctx, &models.AuditLog{
		ActorID:    &reviewerID,
		Action:     "fraud_signal.reviewed",
		Resource:   "fraud_signal",
		ResourceID: strconv.FormatUint(uint64(id), 10),
		Metadata:   sig.ReviewState + "->" + to,
	}); err != nil {
		s.log.Warn("audit write failed", zap.Error(err))
	}
	return s.signals.GetByID(ctx, id)
}

func (s *FraudService) ListSignals(ctx context.Context, f repository.FraudSignalFilter) ([]models.FraudSignal, int64, error) {
	return s.signals.List(ctx, f)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
