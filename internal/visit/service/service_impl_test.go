package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/visit/domain"
	"github.com/smallbiznis/storepulse/internal/visit/repository"
	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func setupVisitService(t *testing.T, now time.Time) (domain.Service, *gorm.DB, domain.Repository) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.DailyVisit{}))

	repo := repository.Provide()
	svc := New(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Repo:   repo,
		Clock:  clock.NewFakeClock(now),
		Policy: config.NewStaticAnalysisPolicyHolder(config.DefaultAnalysisPolicy()),
	})
	return svc, conn, repo
}

func insertVisit(t *testing.T, conn *gorm.DB, id int64, store, customer snowflake.ID, date time.Time, amount int64) {
	t.Helper()
	require.NoError(t, conn.Create(&domain.DailyVisit{
		ID:         snowflake.ID(id),
		StoreID:    store,
		CustomerID: customer,
		VisitDate:  date,
		Amount:     amount,
	}).Error)
}

func TestVisitGraphMonthIncludesCurrentMonth(t *testing.T) {
	svc, conn, _ := setupVisitService(t, time.Date(2025, time.November, 12, 15, 0, 0, 0, time.UTC))
	insertVisit(t, conn, 1, 1, 10, day(2025, time.June, 1), 100)
	insertVisit(t, conn, 2, 1, 11, day(2025, time.June, 30), 50)
	insertVisit(t, conn, 3, 1, 10, day(2025, time.November, 12), 70)
	insertVisit(t, conn, 4, 1, 10, day(2025, time.May, 31), 999)
	insertVisit(t, conn, 5, 2, 10, day(2025, time.November, 1), 999)

	graph, err := svc.VisitGraph(context.Background(), "1", "", "month")
	require.NoError(t, err)
	require.Len(t, graph.Points, 6)

	assert.Equal(t, "2025-06", graph.Points[0].Label)
	assert.Equal(t, int64(2), graph.Points[0].VisitCount)
	assert.Equal(t, int64(150), graph.Points[0].Amount)
	assert.Equal(t, "2025-11", graph.Points[5].Label)
	assert.Equal(t, int64(1), graph.Points[5].VisitCount)
	assert.Equal(t, int64(70), graph.Points[5].Amount)
	for _, p := range graph.Points[1:5] {
		assert.Zero(t, p.VisitCount)
	}
}

func TestVisitGraphWeekForCustomer(t *testing.T) {
	svc, conn, _ := setupVisitService(t, time.Date(2025, time.November, 12, 9, 0, 0, 0, time.UTC))
	insertVisit(t, conn, 1, 1, 10, day(2025, time.November, 10), 10)
	insertVisit(t, conn, 2, 1, 10, day(2025, time.November, 9), 20)
	insertVisit(t, conn, 3, 1, 11, day(2025, time.November, 11), 30)
	insertVisit(t, conn, 4, 1, 10, day(2025, time.September, 22), 40)

	graph, err := svc.VisitGraph(context.Background(), "1", "10", "WEEK")
	require.NoError(t, err)
	require.Len(t, graph.Points, 8)
	assert.Equal(t, domain.GraphModeWeek, graph.Mode)

	assert.Equal(t, "2025-09-22", graph.Points[0].Label)
	assert.Equal(t, int64(1), graph.Points[0].VisitCount)
	assert.Equal(t, "2025-11-03", graph.Points[6].Label)
	assert.Equal(t, int64(20), graph.Points[6].Amount)
	assert.Equal(t, "2025-11-10", graph.Points[7].Label)
	assert.Equal(t, int64(1), graph.Points[7].VisitCount)
	assert.Equal(t, int64(10), graph.Points[7].Amount)
}

func TestVisitGraphRejectsBadInput(t *testing.T) {
	svc, _, _ := setupVisitService(t, day(2025, time.November, 1))

	_, err := svc.VisitGraph(context.Background(), "abc", "", "month")
	assert.ErrorIs(t, err, domain.ErrInvalidStore)

	_, err = svc.VisitGraph(context.Background(), "1", "x", "month")
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)

	_, err = svc.VisitGraph(context.Background(), "1", "", "year")
	assert.ErrorIs(t, err, domain.ErrInvalidMode)
}

func TestRepositoryLookups(t *testing.T) {
	_, conn, repo := setupVisitService(t, day(2025, time.November, 1))
	insertVisit(t, conn, 1, 1, 10, day(2025, time.October, 6), 100)
	insertVisit(t, conn, 2, 1, 10, day(2025, time.October, 7), 50)
	insertVisit(t, conn, 3, 1, 11, day(2025, time.October, 12), 25)
	insertVisit(t, conn, 4, 1, 12, day(2025, time.October, 13), 1)

	ctx := context.Background()
	start, end := day(2025, time.October, 6), day(2025, time.October, 12)

	total, err := repo.SumAmount(ctx, conn, 1, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(175), total)

	ids, err := repo.DistinctVisitorIDs(ctx, conn, 1, start, end)
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{10, 11}, ids.IDs())

	empty, err := repo.SumAmount(ctx, conn, 2, start, end)
	require.NoError(t, err)
	assert.Zero(t, empty)
}
