package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"shipcrowd-wallet/config"
	"shipcrowd-wallet/internal/core/ports/mocks"
)

func newTestScheduler(t *testing.T, cfg config.SchedulerConfig) (*Scheduler, *mocks.MockDisputeService, *mocks.MockRechargeService, *mocks.MockLocker) {
	t.Helper()
	ctrl := gomock.NewController(t)
	disputeSvc := mocks.NewMockDisputeService(ctrl)
	rechargeSvc := mocks.NewMockRechargeService(ctrl)
	locker := mocks.NewMockLocker(ctrl)

	s, err := New(disputeSvc, rechargeSvc, locker, cfg, zerolog.Nop())
	require.NoError(t, err)
	return s, disputeSvc, rechargeSvc, locker
}

func validSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:          true,
		DisputeSweep:     "0 0 * * * *",
		AutoRechargeScan: "0 */5 * * * *",
	}
}

func TestNew_InvalidCronSpec(t *testing.T) {
	ctrl := gomock.NewController(t)
	cfg := config.SchedulerConfig{
		DisputeSweep:     "not a cron spec",
		AutoRechargeScan: "0 */5 * * * *",
	}

	_, err := New(
		mocks.NewMockDisputeService(ctrl),
		mocks.NewMockRechargeService(ctrl),
		mocks.NewMockLocker(ctrl),
		cfg,
		zerolog.Nop(),
	)
	assert.Error(t, err)
}

func TestRunDisputeSweep_AcquiresLockAndResolves(t *testing.T) {
	s, disputeSvc, _, locker := newTestScheduler(t, validSchedulerConfig())

	locker.EXPECT().
		Acquire(gomock.Any(), disputeSweepLockKey, jobLockTTL).
		Return("tok-1", true)
	disputeSvc.EXPECT().
		AutoResolveExpiredDisputes(gomock.Any()).
		Return(3, nil)
	locker.EXPECT().
		Release(gomock.Any(), disputeSweepLockKey, "tok-1").
		Return(true)

	s.runDisputeSweep()
}

func TestRunDisputeSweep_LockHeldElsewhere(t *testing.T) {
	s, _, _, locker := newTestScheduler(t, validSchedulerConfig())

	locker.EXPECT().
		Acquire(gomock.Any(), disputeSweepLockKey, jobLockTTL).
		Return("", false)

	// No AutoResolveExpiredDisputes and no Release expected.
	s.runDisputeSweep()
}

func TestRunDisputeSweep_ReleasesLockOnError(t *testing.T) {
	s, disputeSvc, _, locker := newTestScheduler(t, validSchedulerConfig())

	locker.EXPECT().
		Acquire(gomock.Any(), disputeSweepLockKey, jobLockTTL).
		Return("tok-1", true)
	disputeSvc.EXPECT().
		AutoResolveExpiredDisputes(gomock.Any()).
		Return(0, assert.AnError)
	locker.EXPECT().
		Release(gomock.Any(), disputeSweepLockKey, "tok-1").
		Return(true)

	s.runDisputeSweep()
}

func TestRunRechargeScan_AcquiresLockAndScans(t *testing.T) {
	s, _, rechargeSvc, locker := newTestScheduler(t, validSchedulerConfig())

	locker.EXPECT().
		Acquire(gomock.Any(), rechargeScanLockKey, jobLockTTL).
		Return("tok-2", true)
	rechargeSvc.EXPECT().
		ScanAndRecharge(gomock.Any()).
		Return(2, nil)
	locker.EXPECT().
		Release(gomock.Any(), rechargeScanLockKey, "tok-2").
		Return(true)

	s.runRechargeScan()
}

func TestStartStop(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, validSchedulerConfig())

	s.Start()
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}
