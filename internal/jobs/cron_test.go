package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"tutorwise/config"
	"tutorwise/internal/logging"
	"tutorwise/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScanner struct {
	calls int
	err   error
}

func (f *fakeScanner) Scan(context.Context) (service.ScanReport, error) {
	f.calls++
	return service.ScanReport{Events: 3}, f.err
}

type fakeReleaser struct {
	at time.Time
}

func (f *fakeReleaser) ReleaseCleared(_ context.Context, now time.Time) (int, error) {
	f.at = now
	return 2, nil
}

func testCfg() *config.Config {
	return &config.Config{
		Fraud:      config.FraudConfig{ScanSpec: "@every 10m"},
		Commission: config.CommissionConfig{ReleaseSpec: "@every 15m"},
	}
}

func TestSetupJobs(t *testing.T) {
	cm := NewCronManager(testCfg(), &fakeScanner{}, &fakeReleaser{}, logging.Nop())
	require.NoError(t, cm.SetupJobs())
	assert.Len(t, cm.cron.Entries(), 2)

	bad := testCfg()
	bad.Fraud.ScanSpec = "every now and then"
	assert.Error(t, NewCronManager(bad, &fakeScanner{}, &fakeReleaser{}, logging.Nop()).SetupJobs())
}

func TestRunJobs(t *testing.T) {
	scanner := &fakeScanner{}
	releaser := &fakeReleaser{}
	cm := NewCronManager(testCfg(), scanner, releaser, logging.Nop())

	cm.RunFraudScan()
	scanner.err = errors.New("db down")
	cm.RunFraudScan()
	assert.Equal(t, 2, scanner.calls)

	cm.RunRelease()
	assert.WithinDuration(t, time.Now(), releaser.at, time.Minute)
}
