package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/cohort"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/dashboard/domain"
	visitdomain "github.com/smallbiznis/storepulse/internal/visit/domain"
	visitrepo "github.com/smallbiznis/storepulse/internal/visit/repository"
	"github.com/smallbiznis/storepulse/internal/workerpool"
	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Wednesday.
var testNow = time.Date(2025, time.November, 12, 14, 0, 0, 0, time.UTC)

func day(m time.Month, d int) time.Time {
	return time.Date(2025, m, d, 0, 0, 0, 0, time.UTC)
}

type failingVisits struct {
	visitdomain.Repository
	failSum      func(start, end time.Time) bool
	failVisitors func(start, end time.Time) bool
}

var errLookup = errors.New("lookup failed")

func (f *failingVisits) SumAmount(ctx context.Context, db *gorm.DB, storeID snowflake.ID, start, end time.Time) (int64, error) {
	if f.failSum != nil && f.failSum(start, end) {
		return 0, errLookup
	}
	return f.Repository.SumAmount(ctx, db, storeID, start, end)
}

func (f *failingVisits) DistinctVisitorIDs(ctx context.Context, db *gorm.DB, storeID snowflake.ID, start, end time.Time) (cohort.VisitorSet, error) {
	if f.failVisitors != nil && f.failVisitors(start, end) {
		return nil, errLookup
	}
	return f.Repository.DistinctVisitorIDs(ctx, db, storeID, start, end)
}

type fixture struct {
	conn  *gorm.DB
	repo  visitdomain.Repository
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&visitdomain.DailyVisit{}))
	f := &fixture{conn: conn, repo: visitrepo.Provide(), clock: clock.NewFakeClock(testNow)}
	f.seed(t)
	return f
}

func (f *fixture) service(repo visitdomain.Repository) domain.Service {
	return New(Params{
		DB:     f.conn,
		Log:    zap.NewNop(),
		Visits: repo,
		Pool:   workerpool.New(4),
		Clock:  f.clock,
		Policy: config.NewStaticAnalysisPolicyHolder(config.DefaultAnalysisPolicy()),
	})
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	rows := []struct {
		store, customer snowflake.ID
		date            time.Time
		amount          int64
	}{
		{1, 1, day(time.November, 10), 100},
		{1, 1, day(time.November, 4), 50},
		{1, 1, day(time.October, 28), 10},
		{1, 2, day(time.November, 11), 200},
		{1, 2, day(time.November, 8), 30},
		{1, 3, day(time.November, 12), 300},
		{1, 4, day(time.November, 5), 20},
		{1, 4, day(time.October, 29), 5},
		{1, 5, day(time.November, 6), 40},
		{2, 9, day(time.November, 11), 999},
	}
	for i, r := range rows {
		require.NoError(t, f.conn.Create(&visitdomain.DailyVisit{
			ID:         snowflake.ID(i + 1),
			StoreID:    r.store,
			CustomerID: r.customer,
			VisitDate:  r.date,
			Amount:     r.amount,
		}).Error)
	}
}

func TestWeeklySummaryComparesWeekToDate(t *testing.T) {
	f := newFixture(t)
	summary, err := f.service(f.repo).WeeklySummary(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, "2025-11-10", summary.StartDate)
	assert.Equal(t, "2025-11-12", summary.EndDate)
	assert.Equal(t, int64(600), summary.TotalSales)
	assert.Equal(t, int64(530), summary.SalesChange)
	assert.Equal(t, int64(3), summary.VisitedCustomerCount)
	assert.Equal(t, int64(1), summary.CustomerCountChange)
	// {1,2,3} against last full week {1,2,4,5}.
	assert.InDelta(t, 0.5, summary.RevisitRate, 1e-9)
	// Last week to date {1,4} against {1,4} the week before.
	assert.InDelta(t, -0.5, summary.RevisitRateChange, 1e-9)
	assert.Empty(t, summary.Degraded)
}

func TestWeeklySummaryOnMonday(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(time.Date(2025, time.November, 10, 8, 0, 0, 0, time.UTC))

	summary, err := f.service(f.repo).WeeklySummary(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "2025-11-10", summary.StartDate)
	assert.Equal(t, "2025-11-10", summary.EndDate)
	assert.Equal(t, int64(100), summary.TotalSales)
	assert.Equal(t, int64(1), summary.VisitedCustomerCount)
}

func TestWeeklySummaryDegradesHistoricalLookups(t *testing.T) {
	f := newFixture(t)
	repo := &failingVisits{
		Repository: f.repo,
		failVisitors: func(start, end time.Time) bool {
			return start.Equal(day(time.November, 3)) && end.Equal(day(time.November, 9))
		},
	}

	summary, err := f.service(repo).WeeklySummary(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, []string{lookupPrevFullVisitors}, summary.Degraded)
	assert.Equal(t, int64(600), summary.TotalSales)
	assert.Zero(t, summary.RevisitRate)
	assert.InDelta(t, -1.0, summary.RevisitRateChange, 1e-9)
}

func TestWeeklySummaryFailsOnCurrentWeekLookup(t *testing.T) {
	f := newFixture(t)
	repo := &failingVisits{
		Repository: f.repo,
		failSum: func(start, end time.Time) bool {
			return start.Equal(day(time.November, 10))
		},
	}

	_, err := f.service(repo).WeeklySummary(context.Background(), "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, errLookup)
	assert.Contains(t, err.Error(), lookupThisWeekSales)
}

func TestWeeklySummaryEmptyStore(t *testing.T) {
	f := newFixture(t)
	summary, err := f.service(f.repo).WeeklySummary(context.Background(), "77")
	require.NoError(t, err)
	assert.Zero(t, summary.TotalSales)
	assert.Zero(t, summary.VisitedCustomerCount)
	assert.Zero(t, summary.RevisitRate)
	assert.Zero(t, summary.RevisitRateChange)
}

func TestWeeklySummaryRejectsInvalidStore(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"", "abc", "0", "-3"} {
		_, err := f.service(f.repo).WeeklySummary(context.Background(), id)
		if !errors.Is(err, domain.ErrInvalidStore) {
			t.Fatalf("store %q: expected ErrInvalidStore, got %v", id, err)
		}
	}
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.67, round2(2.0/3.0))
	assert.Equal(t, -0.33, round2(-1.0/3.0))
	assert.Equal(t, 0.0, round2(0))
}
