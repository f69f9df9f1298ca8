package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"shipcrowd-wallet/config"
	"shipcrowd-wallet/internal/core/ports"
)

const (
	disputeSweepLockKey = "lock:sweep:disputes"
	rechargeScanLockKey = "lock:sweep:recharges"
	jobTimeout          = 5 * time.Minute
	jobLockTTL          = 10 * time.Minute
)

// Scheduler runs the background sweeps: auto-resolving expired disputes
// and scanning wallets for auto-recharge. Each job is guarded by a
// distributed lock so only one instance runs it at a time.
type Scheduler struct {
	cron        *cron.Cron
	disputeSvc  ports.DisputeService
	rechargeSvc ports.RechargeService
	locker      ports.Locker
	cfg         config.SchedulerConfig
	log         zerolog.Logger
}

func New(
	disputeSvc ports.DisputeService,
	rechargeSvc ports.RechargeService,
	locker ports.Locker,
	cfg config.SchedulerConfig,
	log zerolog.Logger,
) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
		),
		disputeSvc:  disputeSvc,
		rechargeSvc: rechargeSvc,
		locker:      locker,
		cfg:         cfg,
		log:         log.With().Str("component", "scheduler").Logger(),
	}

	if _, err := s.cron.AddFunc(cfg.DisputeSweep, s.runDisputeSweep); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cfg.AutoRechargeScan, s.runRechargeScan); err != nil {
		return nil, err
	}

	return s, nil
}

// Start begins running the registered jobs. No-op jobs until cron fires.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().
		Str("dispute_sweep", s.cfg.DisputeSweep).
		Str("auto_recharge_scan", s.cfg.AutoRechargeScan).
		Msg("scheduler started")
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) runDisputeSweep() {
	s.runExclusive(disputeSweepLockKey, "dispute_sweep", func(ctx context.Context) error {
		n, err := s.disputeSvc.AutoResolveExpiredDisputes(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.log.Info().Int("resolved", n).Msg("expired disputes auto-resolved")
		}
		return nil
	})
}

func (s *Scheduler) runRechargeScan() {
	s.runExclusive(rechargeScanLockKey, "auto_recharge_scan", func(ctx context.Context) error {
		n, err := s.rechargeSvc.ScanAndRecharge(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.log.Info().Int("recharged", n).Msg("auto-recharge scan complete")
		}
		return nil
	})
}

// runExclusive runs fn under the job's distributed lock. A held lock
// means another instance is already sweeping; skip silently.
func (s *Scheduler) runExclusive(lockKey, job string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	token, ok := s.locker.Acquire(ctx, lockKey, jobLockTTL)
	if !ok {
		s.log.Debug().Str("job", job).Msg("job lock held elsewhere, skipping")
		return
	}
	defer s.locker.Release(ctx, lockKey, token)

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.log.Error().Err(err).Str("job", job).Msg("scheduled job failed")
		return
	}
	s.log.Debug().Str("job", job).Dur("took", time.Since(start)).Msg("scheduled job finished")
}
