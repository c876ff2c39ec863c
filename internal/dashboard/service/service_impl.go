package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/cache"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/cohort"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/dashboard/domain"
	obscontext "github.com/smallbiznis/storepulse/internal/observability/context"
	obslogger "github.com/smallbiznis/storepulse/internal/observability/logger"
	"github.com/smallbiznis/storepulse/internal/observability/metrics"
	"github.com/smallbiznis/storepulse/internal/timewindow"
	visitdomain "github.com/smallbiznis/storepulse/internal/visit/domain"
	"github.com/smallbiznis/storepulse/internal/workerpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	summaryKeyFormat = "storepulse:summary:%s:%s"

	lookupThisWeekSales     = "this_week_sales"
	lookupLastWeekSales     = "last_week_sales"
	lookupThisWeekVisitors  = "this_week_visitors"
	lookupLastWeekVisitors  = "last_week_visitors"
	lookupPrevFullVisitors  = "prev_full_week_visitors"
	lookupTwoBackFullVisits = "two_back_full_week_visitors"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Visits  visitdomain.Repository
	Pool    *workerpool.Pool
	Clock   clock.Clock
	Policy  *config.AnalysisPolicyHolder
	Cache   *cache.JSONCache `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	visits  visitdomain.Repository
	pool    *workerpool.Pool
	clock   clock.Clock
	policy  *config.AnalysisPolicyHolder
	cache   *cache.JSONCache
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	pool := p.Pool
	if pool == nil {
		pool = workerpool.New(0)
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("dashboard.service"),
		visits:  p.Visits,
		pool:    pool,
		clock:   p.Clock,
		policy:  p.Policy,
		cache:   p.Cache,
		metrics: p.Metrics,
	}
}

type span struct {
	start time.Time
	end   time.Time
}

func (s *Service) WeeklySummary(ctx context.Context, storeID string) (domain.WeeklySummary, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(storeID))
	if err != nil || id <= 0 {
		return domain.WeeklySummary{}, domain.ErrInvalidStore
	}
	ctx = obscontext.WithStoreID(ctx, id.String())

	policy := s.policy.Get()
	today := timewindow.Truncate(s.clock.Now().In(policy.Location()))
	key := fmt.Sprintf(summaryKeyFormat, id.String(), today.Format(time.DateOnly))

	if s.cache.Enabled() {
		var cached domain.WeeklySummary
		found, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger(ctx).Warn("dashboard.cache.get_failed", zap.Error(err))
		}
		if found {
			s.metrics.RecordSummaryRequest(ctx, "hit")
			return cached, nil
		}
		s.metrics.RecordSummaryRequest(ctx, "miss")
	} else {
		s.metrics.RecordSummaryRequest(ctx, "disabled")
	}

	summary, err := s.compute(ctx, id, today)
	if err != nil {
		return domain.WeeklySummary{}, err
	}

	if len(summary.Degraded) == 0 {
		if err := s.cache.Set(ctx, key, summary, policy.SummaryCacheTTL); err != nil {
			s.logger(ctx).Warn("dashboard.cache.set_failed", zap.Error(err))
		}
	}
	return summary, nil
}

func (s *Service) compute(ctx context.Context, storeID snowflake.ID, today time.Time) (domain.WeeklySummary, error) {
	thisWeek := span{start: timewindow.WeekStart(today), end: today}
	lastWeek := span{start: thisWeek.start.AddDate(0, 0, -7), end: thisWeek.end.AddDate(0, 0, -7)}

	// full[2] is the current week, full[1] the previous full week, full[0] the one before.
	full := timewindow.MustGenerate(today, timewindow.Week, 3)
	prevFull := span{start: full[1].Start, end: full[1].End}
	twoBackFull := span{start: full[0].Start, end: full[0].End}

	var (
		thisSales, lastSales              int64
		thisVisitors, lastVisitors        cohort.VisitorSet
		prevFullVisitors, twoBackVisitors cohort.VisitorSet
	)

	lookups := []string{
		lookupThisWeekSales,
		lookupLastWeekSales,
		lookupThisWeekVisitors,
		lookupLastWeekVisitors,
		lookupPrevFullVisitors,
		lookupTwoBackFullVisits,
	}
	errs := s.pool.Run(ctx,
		func(ctx context.Context) (err error) {
			thisSales, err = s.visits.SumAmount(ctx, s.db, storeID, thisWeek.start, thisWeek.end)
			return err
		},
		func(ctx context.Context) (err error) {
			lastSales, err = s.visits.SumAmount(ctx, s.db, storeID, lastWeek.start, lastWeek.end)
			return err
		},
		func(ctx context.Context) (err error) {
			thisVisitors, err = s.visits.DistinctVisitorIDs(ctx, s.db, storeID, thisWeek.start, thisWeek.end)
			return err
		},
		func(ctx context.Context) (err error) {
			lastVisitors, err = s.visits.DistinctVisitorIDs(ctx, s.db, storeID, lastWeek.start, lastWeek.end)
			return err
		},
		func(ctx context.Context) (err error) {
			prevFullVisitors, err = s.visits.DistinctVisitorIDs(ctx, s.db, storeID, prevFull.start, prevFull.end)
			return err
		},
		func(ctx context.Context) (err error) {
			twoBackVisitors, err = s.visits.DistinctVisitorIDs(ctx, s.db, storeID, twoBackFull.start, twoBackFull.end)
			return err
		},
	)

	var degraded []string
	for i, err := range errs {
		if err == nil {
			continue
		}
		name := lookups[i]
		if name == lookupThisWeekSales || name == lookupThisWeekVisitors {
			return domain.WeeklySummary{}, fmt.Errorf("%s: %w", name, err)
		}
		degraded = append(degraded, name)
		metrics.Analysis().IncLookupDegraded(name)
		s.logger(ctx).Warn("dashboard.lookup.degraded",
			zap.String("lookup", name),
			zap.String("error_type", metrics.ClassifyErrorType(err)),
			zap.Error(err),
		)
	}

	revisit := cohort.RevisitRate(thisVisitors, prevFullVisitors)
	previousRevisit := cohort.RevisitRate(lastVisitors, twoBackVisitors)

	return domain.WeeklySummary{
		StartDate:            thisWeek.start.Format(time.DateOnly),
		EndDate:              thisWeek.end.Format(time.DateOnly),
		TotalSales:           thisSales,
		SalesChange:          cohort.Delta(thisSales, lastSales),
		VisitedCustomerCount: int64(thisVisitors.Len()),
		CustomerCountChange:  cohort.Delta(int64(thisVisitors.Len()), int64(lastVisitors.Len())),
		RevisitRate:          round2(revisit),
		RevisitRateChange:    round2(cohort.DeltaFloat(revisit, previousRevisit)),
		Degraded:             degraded,
	}, nil
}

func (s *Service) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
