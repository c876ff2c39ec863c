package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	analysisdomain "github.com/smallbiznis/storepulse/internal/analysis/domain"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	obsmetrics "github.com/smallbiznis/storepulse/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobMonthlyAnalysis = "monthly_analysis"
	periodLayout       = "2006-01"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

type Params struct {
	fx.In

	Log      *zap.Logger
	Analysis analysisdomain.Service
	Policy   *config.AnalysisPolicyHolder
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	analysis analysisdomain.Service
	policy   *config.AnalysisPolicyHolder

	mu         sync.Mutex
	lastPeriod string
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Analysis == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		analysis: p.Analysis,
		policy:   p.Policy,
	}, nil
}

// PeriodKey names the monthly analysis period containing t.
func PeriodKey(t time.Time) string {
	return t.Format(periodLayout)
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	jobMetrics := obsmetrics.Analysis()
	jobMetrics.IncJobRun(name)

	err := fn(ctx)
	jobMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		jobMetrics.IncJobTimeout(name)
	}
	jobMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every job that is due at the current clock time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	period := PeriodKey(s.now())
	if !s.isDue(period) {
		return nil
	}
	return s.runJob(parent, JobMonthlyAnalysis, s.cfg.SweepTimeout, func(ctx context.Context) error {
		return s.MonthlyAnalysisJob(ctx, period)
	})
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	jobMetrics := obsmetrics.Analysis()

	for {
		runLag := s.clock.Now().Sub(nextRun)
		if runLag > 0 {
			jobMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// MonthlyAnalysisJob sweeps all stores once for period. The analysis run
// ledger guarantees a single sweep per period across restarts and replicas.
func (s *Scheduler) MonthlyAnalysisJob(ctx context.Context, period string) error {
	run := jobRunFromContext(ctx)

	summary, ran, err := s.analysis.RunPeriod(ctx, period)
	run.AddProcessed(summary.StoresProcessed)
	if err != nil {
		return err
	}
	if !ran {
		s.logger(ctx).Info("scheduler.job.skipped",
			zap.String("job", JobMonthlyAnalysis),
			zap.String("period", period),
		)
		s.markDone(period)
		return nil
	}

	for range summary.Failed {
		run.IncError()
	}
	s.markDone(period)
	return nil
}

func (s *Scheduler) now() time.Time {
	return s.clock.Now().In(s.policy.Get().Location())
}

func (s *Scheduler) isDue(period string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPeriod != period
}

func (s *Scheduler) markDone(period string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPeriod = period
}
