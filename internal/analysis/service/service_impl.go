package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/analysis/domain"
	"github.com/smallbiznis/storepulse/internal/cache"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/cohort"
	"github.com/smallbiznis/storepulse/internal/config"
	customerdomain "github.com/smallbiznis/storepulse/internal/customer/domain"
	obscontext "github.com/smallbiznis/storepulse/internal/observability/context"
	obslogger "github.com/smallbiznis/storepulse/internal/observability/logger"
	"github.com/smallbiznis/storepulse/internal/observability/metrics"
	"github.com/smallbiznis/storepulse/internal/scoring"
	storedomain "github.com/smallbiznis/storepulse/internal/store/domain"
	"github.com/smallbiznis/storepulse/internal/timewindow"
	visitdomain "github.com/smallbiznis/storepulse/internal/visit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	sweepLockKey       = "storepulse:analysis:sweep"
	storeLockKeyPrefix = "storepulse:analysis:store:"
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle `optional:"true"`
	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Policy    *config.AnalysisPolicyHolder
	Clock     clock.Clock
	GenID     *snowflake.Node
	Stores    storedomain.Repository
	Customers customerdomain.Repository
	Visits    visitdomain.Repository
	Runs      domain.Repository
	Gateway   scoring.Gateway
	Locker    *cache.Locker    `optional:"true"`
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	policy    *config.AnalysisPolicyHolder
	clock     clock.Clock
	genID     *snowflake.Node
	stores    storedomain.Repository
	customers customerdomain.Repository
	visits    visitdomain.Repository
	runs      domain.Repository
	gateway   scoring.Gateway
	locker    *cache.Locker
	metrics   *metrics.Metrics

	lockTTL      time.Duration
	sweepTimeout time.Duration

	running atomic.Bool
	// inFlight holds the ids of stores whose pipeline is running in this process.
	inFlight sync.Map
	wg       sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// plan is the per-sweep snapshot shared by every store of that sweep.
type plan struct {
	trigger domain.Trigger
	today   time.Time
	windows []timewindow.Window
	builder scoring.Builder
}

func New(p Params) (domain.Service, error) {
	return newService(p)
}

func newService(p Params) (*Service, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.GenID == nil || p.Gateway == nil {
		return nil, errors.New("analysis: missing dependency")
	}
	lockTTL := p.Config.Scheduler.LockTTL
	if lockTTL <= 0 {
		lockTTL = 3 * time.Hour
	}
	sweepTimeout := p.Config.Scheduler.SweepTimeout
	if sweepTimeout <= 0 {
		sweepTimeout = 2 * time.Hour
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Service{
		db:           p.DB,
		log:          p.Log.Named("analysis.service"),
		policy:       p.Policy,
		clock:        p.Clock,
		genID:        p.GenID,
		stores:       p.Stores,
		customers:    p.Customers,
		visits:       p.Visits,
		runs:         p.Runs,
		gateway:      p.Gateway,
		locker:       p.Locker,
		metrics:      p.Metrics,
		lockTTL:      lockTTL,
		sweepTimeout: sweepTimeout,
		baseCtx:      baseCtx,
		cancel:       cancel,
	}

	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				s.cancel()
				done := make(chan struct{})
				go func() {
					s.wg.Wait()
					close(done)
				}()
				select {
				case <-done:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		})
	}
	return s, nil
}

func (s *Service) RunAllStores(ctx context.Context) domain.Summary {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("analysis.sweep.skipped", zap.String("reason", "in_progress"))
		return domain.Summary{}
	}
	defer s.running.Store(false)

	summary, err := s.sweep(ctx, domain.TriggerManual, nil)
	if err != nil {
		s.log.Warn("analysis.sweep.aborted", zap.Error(err))
	}
	return summary
}

func (s *Service) TriggerAllStores(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return domain.ErrSweepInProgress
	}

	requestID := obscontext.RequestIDFromContext(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		bg, cancel := context.WithTimeout(s.baseCtx, s.sweepTimeout)
		defer cancel()
		if requestID != "" {
			bg = obscontext.WithRequestID(bg, requestID)
		}
		bg = obscontext.WithActor(bg, "admin", "trigger")

		if _, err := s.sweep(bg, domain.TriggerManual, nil); err != nil {
			s.log.Warn("analysis.sweep.aborted", zap.Error(err))
		}
	}()
	return nil
}

func (s *Service) RunPeriod(ctx context.Context, periodKey string) (domain.Summary, bool, error) {
	periodKey = strings.TrimSpace(periodKey)
	if periodKey == "" {
		return domain.Summary{}, false, errors.New("period key is required")
	}
	if !s.running.CompareAndSwap(false, true) {
		return domain.Summary{}, false, nil
	}
	defer s.running.Store(false)

	existing, err := s.runs.FindByPeriod(ctx, s.db, periodKey)
	if err != nil {
		return domain.Summary{}, false, err
	}
	if existing != nil && existing.Status == domain.RunStatusCompleted {
		return domain.Summary{}, false, nil
	}

	summary, err := s.sweep(ctx, domain.TriggerScheduled, &periodKey)
	if errors.Is(err, domain.ErrSweepLocked) || errors.Is(err, errPeriodClaimed) {
		return domain.Summary{}, false, nil
	}
	if err != nil {
		return summary, true, err
	}
	return summary, true, nil
}

func (s *Service) RunStore(ctx context.Context, storeID string) (domain.Outcome, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(storeID))
	if err != nil || id <= 0 {
		return domain.Outcome{}, domain.ErrInvalidStore
	}
	if s.running.Load() {
		return domain.Outcome{}, domain.ErrSweepInProgress
	}

	release, err := s.acquireStore(ctx, id)
	if err != nil {
		return domain.Outcome{}, err
	}
	defer release()

	store, err := s.stores.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Outcome{}, err
	}
	if store == nil {
		return domain.Outcome{}, domain.ErrStoreNotFound
	}

	p, err := s.newPlan(domain.TriggerManual)
	if err != nil {
		return domain.Outcome{}, err
	}
	return s.runStoreIsolated(ctx, p, id), nil
}

// acquireStore reserves a store for one pipeline run, in process and, when
// redis is configured, across replicas. It returns ErrStoreBusy when the
// store is already held.
func (s *Service) acquireStore(ctx context.Context, storeID snowflake.ID) (func(), error) {
	if _, held := s.inFlight.LoadOrStore(storeID, struct{}{}); held {
		return nil, domain.ErrStoreBusy
	}

	key := storeLockKeyPrefix + storeID.String()
	token, ok, err := s.locker.TryLock(ctx, key, s.sweepTimeout)
	if err != nil {
		s.inFlight.Delete(storeID)
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !ok {
		s.inFlight.Delete(storeID)
		return nil, domain.ErrStoreBusy
	}

	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("analysis.store.unlock_failed", zap.String("store_id", storeID.String()), zap.Error(err))
		}
		s.inFlight.Delete(storeID)
	}, nil
}

// runStoreGuarded runs one store of a sweep. A store held by another run is
// skipped; a lock failure fails the store.
func (s *Service) runStoreGuarded(ctx context.Context, p plan, storeID snowflake.ID) domain.Outcome {
	release, err := s.acquireStore(ctx, storeID)
	if err != nil {
		ctx = obscontext.WithStoreID(ctx, storeID.String())
		outcome := domain.Outcome{StoreID: storeID, Status: domain.OutcomeFailed, Error: err.Error()}
		if errors.Is(err, domain.ErrStoreBusy) {
			outcome = domain.Outcome{StoreID: storeID, Status: domain.OutcomeSkipped, Reason: domain.SkipStoreBusy}
		}
		s.logOutcome(ctx, p, outcome, err, time.Now())
		return outcome
	}
	defer release()
	return s.runStoreIsolated(ctx, p, storeID)
}

var errPeriodClaimed = errors.New("analysis period already claimed")

func (s *Service) sweep(ctx context.Context, trigger domain.Trigger, periodKey *string) (domain.Summary, error) {
	var summary domain.Summary

	token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.lockTTL)
	if err != nil {
		return summary, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		s.log.Info("analysis.sweep.locked", zap.String("trigger", string(trigger)))
		return summary, domain.ErrSweepLocked
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), sweepLockKey, token); err != nil {
			s.log.Warn("analysis.sweep.unlock_failed", zap.Error(err))
		}
	}()

	p, err := s.newPlan(trigger)
	if err != nil {
		return summary, err
	}

	run := &domain.Run{
		ID:            s.genID.Generate(),
		TriggerSource: trigger,
		PeriodKey:     periodKey,
		Status:        domain.RunStatusRunning,
		StartedAt:     s.clock.Now(),
	}
	if periodKey != nil {
		claimed, err := s.runs.ClaimPeriod(ctx, s.db, run, s.clock.Now().Add(-s.sweepTimeout))
		if err != nil {
			return summary, fmt.Errorf("claim period: %w", err)
		}
		if !claimed {
			return summary, errPeriodClaimed
		}
	} else if err := s.runs.Insert(ctx, s.db, run); err != nil {
		s.log.Warn("analysis.run.record_failed", zap.Error(err))
		run = nil
	}

	log := s.log.With(zap.String("trigger", string(trigger)))
	if run != nil {
		log = log.With(zap.String("run_id", run.ID.String()))
	}
	start := time.Now()

	stores, err := s.stores.List(ctx, s.db)
	if err != nil {
		s.finishRun(ctx, run, domain.RunStatusFailed, summary)
		return summary, fmt.Errorf("list stores: %w", err)
	}

	log.Info("analysis.sweep.start",
		zap.Int("stores", len(stores)),
		zap.String("anchor", p.today.Format(time.DateOnly)),
		zap.Int("windows", len(p.windows)),
	)

	for _, store := range stores {
		if ctx.Err() != nil {
			log.Warn("analysis.sweep.interrupted",
				zap.Int("remaining", len(stores)-summary.StoresProcessed),
				zap.Error(ctx.Err()),
			)
			break
		}
		summary.Add(s.runStoreGuarded(ctx, p, store.ID))
	}

	status := domain.RunStatusCompleted
	if ctx.Err() != nil {
		status = domain.RunStatusFailed
	}
	s.finishRun(ctx, run, status, summary)

	log.Info("analysis.sweep.finish",
		zap.Int("stores_processed", summary.StoresProcessed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return summary, ctx.Err()
}

func (s *Service) finishRun(ctx context.Context, run *domain.Run, status domain.RunStatus, summary domain.Summary) {
	if run == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		raw = []byte(`{}`)
	}
	if err := s.runs.Finish(context.WithoutCancel(ctx), s.db, run.ID, status, datatypes.JSON(raw), s.clock.Now()); err != nil {
		s.log.Warn("analysis.run.record_failed", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
}

// newPlan reads the policy once; every store in the sweep uses the same snapshot.
func (s *Service) newPlan(trigger domain.Trigger) (plan, error) {
	policy := s.policy.Get()
	today := timewindow.Truncate(s.clock.Now().In(policy.Location()))

	g := timewindow.MonthCompleted
	if policy.Granularity == config.GranularityWeek {
		g = timewindow.Week
	}
	windows, err := timewindow.Generate(today, g, policy.WindowCount)
	if err != nil {
		return plan{}, err
	}
	return plan{
		trigger: trigger,
		today:   today,
		windows: windows,
		builder: scoring.NewBuilder(today, g, policy),
	}, nil
}

// runStoreIsolated never panics and never returns an error; every failure
// is folded into the outcome.
func (s *Service) runStoreIsolated(ctx context.Context, p plan, storeID snowflake.ID) (outcome domain.Outcome) {
	ctx = obscontext.WithStoreID(ctx, storeID.String())
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			outcome = domain.Outcome{
				StoreID: storeID,
				Status:  domain.OutcomeFailed,
				Error:   fmt.Sprintf("panic: %v", r),
			}
			s.logOutcome(ctx, p, outcome, fmt.Errorf("panic: %v", r), start)
		}
	}()

	outcome, err := s.runStore(ctx, p, storeID)
	if err != nil {
		outcome.StoreID = storeID
		outcome.Status = domain.OutcomeFailed
		outcome.Error = err.Error()
		outcome.Updated = 0
	}
	s.logOutcome(ctx, p, outcome, err, start)
	return outcome
}

func (s *Service) runStore(ctx context.Context, p plan, storeID snowflake.ID) (domain.Outcome, error) {
	outcome := domain.Outcome{StoreID: storeID}
	start, end, _ := timewindow.Span(p.windows)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		customers, err := s.customers.FindAllByStore(ctx, tx, storeID)
		if err != nil {
			return fmt.Errorf("load customers: %w", err)
		}
		outcome.Customers = len(customers)
		if len(customers) == 0 {
			outcome.Status = domain.OutcomeSkipped
			outcome.Reason = domain.SkipNoCustomers
			return nil
		}

		visits, err := s.visits.FindByStoreAndRange(ctx, tx, storeID, start, end)
		if err != nil {
			return fmt.Errorf("load visits: %w", err)
		}
		buckets := cohort.Bucket(visits, p.windows)
		if buckets.Empty() {
			outcome.Status = domain.OutcomeSkipped
			outcome.Reason = domain.SkipNoVisits
			return nil
		}

		snapshots := make([]scoring.CustomerSnapshot, 0, len(customers))
		batch := make([]scoring.FeatureVector, 0, len(customers))
		for _, c := range customers {
			snap := scoring.SnapshotOf(c)
			snapshots = append(snapshots, snap)
			batch = append(batch, p.builder.Build(snap, buckets.CountsFor(c.ID), buckets.AmountFor(c.ID)))
		}

		results, err := s.gateway.Score(ctx, storeID, batch)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return &scoring.ServiceError{StoreID: storeID, Err: scoring.ErrEmptyResult}
		}

		rec := scoring.Reconcile(snapshots, results)
		s.logReconciliation(ctx, rec)

		if _, err := s.customers.UpdateSegments(ctx, tx, storeID, rec.Updates, s.clock.Now()); err != nil {
			return fmt.Errorf("update segments: %w", err)
		}

		outcome.Status = domain.OutcomeSuccess
		outcome.Updated = rec.Updated
		outcome.Unmatched = rec.Unmatched
		outcome.Discarded = rec.Discarded
		return nil
	})
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}

func (s *Service) logReconciliation(ctx context.Context, rec scoring.Reconciliation) {
	log := obslogger.WithContext(ctx, s.log)
	if rec.Discarded > 0 {
		log.Warn("scoring.result.discarded",
			zap.Int("count", rec.Discarded),
			zap.Strings("customer_ids", rec.DiscardedIDs),
		)
	}
	if rec.Unmatched > 0 {
		log.Info("scoring.result.unmatched",
			zap.Int("count", rec.Unmatched),
		)
	}
}

func (s *Service) logOutcome(ctx context.Context, p plan, outcome domain.Outcome, err error, start time.Time) {
	trigger := string(p.trigger)
	am := metrics.Analysis()
	am.IncStoreOutcome(trigger, string(outcome.Status))
	s.metrics.RecordStoreOutcome(ctx, trigger, string(outcome.Status))

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("trigger", trigger),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	switch outcome.Status {
	case domain.OutcomeSuccess:
		am.AddReconciled(metrics.ReconcileUpdated, outcome.Updated)
		am.AddReconciled(metrics.ReconcileUnmatched, outcome.Unmatched)
		am.AddReconciled(metrics.ReconcileDiscarded, outcome.Discarded)
		s.metrics.RecordCustomerUpdates(ctx, outcome.Updated)
		log.Info("analysis.store.success",
			zap.Int("customers", outcome.Customers),
			zap.Int("updated", outcome.Updated),
			zap.Int("unmatched", outcome.Unmatched),
			zap.Int("discarded", outcome.Discarded),
		)
	case domain.OutcomeSkipped:
		log.Info("analysis.store.skipped", zap.String("reason", outcome.Reason))
	default:
		log.Error("analysis.store.failed",
			zap.String("error_type", metrics.ClassifyErrorType(err)),
			zap.Bool("retryable", metrics.IsErrorRetryable(err)),
			zap.Error(err),
		)
	}
}
