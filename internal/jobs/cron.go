package jobs

import (
	"context"
	"time"

	"tutorwise/config"
	"tutorwise/internal/service"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scanner runs one fraud scan.
type Scanner interface {
	Scan(ctx context.Context) (service.ScanReport, error)
}

// Releaser moves cleared commission entries to available.
type Releaser interface {
	ReleaseCleared(ctx context.Context, now time.Time) (int, error)
}

// CronManager schedules the fraud scan and the clearing release.
type CronManager struct {
	cron     *cron.Cron
	cfg      *config.Config
	scanner  Scanner
	releaser Releaser
	logger   *zap.Logger
}

func NewCronManager(cfg *config.Config, scanner Scanner, releaser Releaser, logger *zap.Logger) *CronManager {
	return &CronManager{
		// Skip a run while the previous one is still going.
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		cfg:      cfg,
		scanner:  scanner,
		releaser: releaser,
		logger:   logger,
	}
}

// SetupJobs registers all scheduled jobs.
func (cm *CronManager) SetupJobs() error {
	if _, err := cm.cron.AddFunc(cm.cfg.Fraud.ScanSpec, cm.RunFraudScan); err != nil {
		return err
	}
	if _, err := cm.cron.AddFunc(cm.cfg.Commission.ReleaseSpec, cm.RunRelease); err != nil {
		return err
	}
	cm.logger.Info("cron jobs registered",
		zap.String("fraud_scan", cm.cfg.Fraud.ScanSpec),
		zap.String("clearing_release", cm.cfg.Commission.ReleaseSpec))
	return nil
}

func (cm *CronManager) RunFraudScan() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report, err := cm.scanner.Scan(ctx)
	if err != nil {
		cm.logger.Error("fraud scan failed", zap.Error(err))
		return
	}
	cm.logger.Debug("fraud scan job done", zap.Int("events", report.Events))
}

func (cm *CronManager) RunRelease() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	n, err := cm.releaser.ReleaseCleared(ctx, time.Now().UTC())
	if err != nil {
		cm.logger.Error("clearing release failed", zap.Error(err))
		return
	}
	cm.logger.Debug("clearing release job done", zap.Int("released", n))
}

func (cm *CronManager) Start() {
	cm.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (cm *CronManager) Stop() context.Context {
	return cm.cron.Stop()
}
