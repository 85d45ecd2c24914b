// Package sweeper releases reservations whose payment never completed.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	allocationdomain "github.com/smallbiznis/sponsorship/internal/allocation/domain"
	auditdomain "github.com/smallbiznis/sponsorship/internal/audit/domain"
	"github.com/smallbiznis/sponsorship/internal/config"
	"github.com/smallbiznis/sponsorship/internal/distlock"
	obsmetrics "github.com/smallbiznis/sponsorship/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_sweeper_config")

type Params struct {
	fx.In

	Log         *zap.Logger
	Config      config.Config
	Policy      *config.PricingPolicyHolder
	Allocations allocationdomain.Service
	Locker      distlock.Locker
	Metrics     *obsmetrics.SweeperMetrics `optional:"true"`
	Audit       auditdomain.Service        `optional:"true"`
}

type Sweeper struct {
	log         *zap.Logger
	cfg         config.SweeperConfig
	policy      *config.PricingPolicyHolder
	allocations allocationdomain.Service
	locker      distlock.Locker
	metrics     *obsmetrics.SweeperMetrics
	audit       auditdomain.Service
	cron        *cron.Cron
}

func New(p Params) (*Sweeper, error) {
	if p.Log == nil || p.Policy == nil || p.Allocations == nil || p.Locker == nil {
		return nil, ErrInvalidConfig
	}
	cfg := withDefaults(p.Config.Sweeper)
	log := p.Log.Named("sweeper")

	return &Sweeper{
		log:         log,
		cfg:         cfg,
		policy:      p.Policy,
		allocations: p.Allocations,
		locker:      p.Locker,
		metrics:     p.Metrics,
		audit:       p.Audit,
		cron:        cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(zap.NewStdLog(log))))),
	}, nil
}

func withDefaults(cfg config.SweeperConfig) config.SweeperConfig {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "sponsorship:sweeper:lock"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 55 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	return cfg
}

// Start registers the sweep on the configured schedule.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, s.tick); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("sweeper scheduled", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Warn("sweep failed", zap.Error(err))
	}
}

// RunOnce releases expired reservations while holding the sweeper lock.
// It returns the number released. A held lock is a skip, not an error.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	token, ok, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
	if err != nil {
		s.metrics.IncSkipped(obsmetrics.SweeperSkipLockErr)
		return 0, err
	}
	if !ok {
		s.metrics.IncSkipped(obsmetrics.SweeperSkipLockHeld)
		return 0, nil
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, s.cfg.LockKey, token); err != nil {
			s.log.Warn("sweeper lock release failed", zap.Error(err))
		}
	}()

	start := time.Now()
	released, err := s.sweep(ctx)
	s.metrics.ObserveRun(time.Since(start))
	s.metrics.AddReleased(released)
	if err != nil {
		s.metrics.IncError(err)
	}
	if released > 0 {
		s.log.Info("expired reservations released", zap.Int("count", released))
	}
	return released, err
}

func (s *Sweeper) sweep(ctx context.Context) (int, error) {
	ttl := s.policy.Get().ReservationTTL
	released := 0
	var sweepErr error

	for {
		if err := ctx.Err(); err != nil {
			return released, errors.Join(sweepErr, err)
		}
		expired, err := s.allocations.ListExpiredReservations(ctx, ttl, s.cfg.BatchSize)
		if err != nil {
			return released, errors.Join(sweepErr, err)
		}

		progressed := 0
		for _, allocation := range expired {
			_, err := s.allocations.Release(ctx, allocation.ID)
			switch {
			case err == nil:
				progressed++
				s.recordExpired(ctx, allocation)
			case errors.Is(err, allocationdomain.ErrInvalidTransition):
				// Captured or released between list and release.
				progressed++
				continue
			default:
				s.log.Warn("release expired reservation failed",
					zap.String("allocation_id", allocation.ID.String()),
					zap.Error(err),
				)
				sweepErr = errors.Join(sweepErr, err)
				continue
			}
			released++
		}

		if len(expired) < s.cfg.BatchSize || progressed == 0 {
			return released, sweepErr
		}
	}
}

// recordExpired is best effort; the release is already committed.
func (s *Sweeper) recordExpired(ctx context.Context, allocation *allocationdomain.Allocation) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, nil, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeSweeper,
		Action:     auditdomain.ActionAllocationExpired,
		TargetType: auditdomain.TargetTypeAllocation,
		TargetID:   allocation.ID.String(),
		Metadata: map[string]any{
			"rule_id":     allocation.RuleID.String(),
			"amount":      allocation.Amount,
			"reserved_at": allocation.ReservedAt,
		},
	})
	if err != nil {
		s.log.Warn("audit expired reservation failed",
			zap.String("allocation_id", allocation.ID.String()),
			zap.Error(err),
		)
	}
}
