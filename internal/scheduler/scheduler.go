package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/shikkha/internal/clock"
	obsmetrics "github.com/smallbiznis/shikkha/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/shikkha/internal/payment/domain"
	"github.com/smallbiznis/shikkha/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc paymentdomain.Service
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     Config            `optional:"true"`
	Locker     *ratelimit.Locker `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	paymentSvc paymentdomain.Service
	locker     *ratelimit.Locker
	cron       *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.PaymentSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        cfg,
		genID:      p.GenID,
		clock:      p.Clock,
		paymentSvc: p.PaymentSvc,
		locker:     p.Locker,
	}, nil
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

func (s *Scheduler) jobs() []job {
	return []job{
		{JobEnrollmentGrants, s.cfg.GrantsSpec, s.EnrollmentGrantsJob},
		{JobReconcilePayments, s.cfg.ReconcileSpec, s.ReconcilePaymentsJob},
	}
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	release, ok := s.acquire(ctx, name)
	if !ok {
		s.log.Debug("scheduler.job.skipped", zap.String("job", name), zap.String("reason", "locked"))
		return nil
	}
	defer release()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// Deadlines are soft: the next tick picks up the rest.
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// acquire takes the cross-replica job lock. Without redis every replica runs
// every job; the conditional updates keep that safe.
func (s *Scheduler) acquire(ctx context.Context, name string) (func(), bool) {
	release, ok, err := s.locker.Acquire(ctx, "scheduler:"+name, s.cfg.LockTTL)
	if err != nil {
		s.log.Warn("scheduler lock failed; running unlocked", zap.String("job", name), zap.Error(err))
		return release, true
	}
	return release, ok
}

// RunOnce runs every enabled job one time, in order.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, j.name, s.cfg.BatchSize, s.cfg.JobTimeout, j.run))
	}
	return err
}

// Start registers the enabled jobs on a cron runner bound to ctx.
// SkipIfStillRunning keeps one run per job in flight.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.log}),
		cron.SkipIfStillRunning(cronLogger{s.log}),
	))
	for _, j := range s.jobs() {
		if !s.isJobEnabled(j.name) {
			continue
		}
		j := j
		var id cron.EntryID
		id, err := c.AddFunc(j.spec, func() {
			// Prev is the tick that triggered this run; cron uses the wall clock.
			s.observeTickLag(c.Entry(id).Prev, time.Now())
			if err := s.runJob(ctx, j.name, s.cfg.BatchSize, s.cfg.JobTimeout, j.run); err != nil {
				s.log.Warn("scheduler run failed", zap.String("job", j.name), zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
		s.log.Info("scheduler.job.registered", zap.String("job", j.name), zap.String("spec", j.spec))
	}
	s.cron = c
	c.Start()
	return nil
}

func (s *Scheduler) observeTickLag(scheduled, started time.Time) {
	if scheduled.IsZero() {
		return
	}
	obsmetrics.Scheduler().ObserveRunLoopLag(started.Sub(scheduled))
}

// Stop waits for running jobs to return or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) EnrollmentGrantsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	var jobErr error
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := s.paymentSvc.ProcessDueGrants(ctx, s.cfg.BatchSize)
		if err != nil {
			s.logSchedulerError(ctx, run, "scheduler.grants.failed", JobEnrollmentGrants, err)
			return errors.Join(jobErr, err)
		}
		run.AddProcessed(result.Processed)
		obsmetrics.Scheduler().AddBatchProcessed(JobEnrollmentGrants, "grants", result.Processed)
		if result.Retried > 0 {
			s.logger(ctx).Warn("scheduler.grants.deferred",
				zap.Int("retried", result.Retried),
				zap.Int("enrolled", result.Enrolled),
			)
		}
		// Retried grants move their next_attempt_at forward, so a full batch
		// of successes is the only reason to loop.
		if result.Processed < s.cfg.BatchSize || result.Retried > 0 {
			return jobErr
		}
	}
}

func (s *Scheduler) ReconcilePaymentsJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	result, err := s.paymentSvc.Reconcile(ctx, s.cfg.BatchSize)
	run.AddProcessed(result.Successful + result.Failed)
	obsmetrics.Scheduler().AddBatchProcessed(JobReconcilePayments, "payments", result.Successful+result.Failed)
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.reconcile.failed", JobReconcilePayments, err,
			zap.Int("checked", result.Checked),
			zap.Int("skipped", result.Skipped),
		)
		return err
	}
	return nil
}
