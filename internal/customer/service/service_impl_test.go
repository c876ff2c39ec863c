package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/clock"
	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/customer/domain"
	"github.com/smallbiznis/storepulse/internal/customer/repository"
	"github.com/smallbiznis/storepulse/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCustomerDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Customer{}))
	return conn
}

func newTestService(conn *gorm.DB, now time.Time) domain.Service {
	return New(Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Repo:   repository.Provide(),
		Clock:  clock.NewFakeClock(now),
		Policy: config.NewStaticAnalysisPolicyHolder(config.DefaultAnalysisPolicy()),
	})
}

func seedSegments(t *testing.T, conn *gorm.DB, storeID snowflake.ID, firstID int64, segment domain.Segment, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		id := snowflake.ID(firstID + int64(i))
		require.NoError(t, conn.Create(&domain.Customer{
			ID:      id,
			StoreID: storeID,
			Name:    fmt.Sprintf("customer-%d", id),
			Segment: segment,
		}).Error)
	}
}

func TestDeclinedLoyalSummaryRatio(t *testing.T) {
	conn := setupCustomerDB(t)
	seedSegments(t, conn, 1, 100, domain.SegmentLoyal, 13)
	seedSegments(t, conn, 1, 200, domain.SegmentAtRiskLoyal, 7)
	seedSegments(t, conn, 1, 300, domain.SegmentChurnRisk, 4)
	seedSegments(t, conn, 2, 400, domain.SegmentAtRiskLoyal, 9)

	svc := newTestService(conn, time.Now())
	summary, err := svc.DeclinedLoyalSummary(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, int64(13), summary.LoyalCount)
	assert.Equal(t, int64(7), summary.AtRiskCount)
	assert.Equal(t, 35, summary.DeclineRatio)

	_, err = svc.DeclinedLoyalSummary(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidStore)
}

func TestDeclineRatio(t *testing.T) {
	assert.Equal(t, 0, DeclineRatio(0, 0))
	assert.Equal(t, 100, DeclineRatio(0, 3))
	assert.Equal(t, 33, DeclineRatio(2, 1))
	assert.Equal(t, 50, DeclineRatio(1, 1))
	// 1/8 = 12.5 rounds half up
	assert.Equal(t, 13, DeclineRatio(7, 1))
}

func TestListByStoreAddsChurnRiskLevel(t *testing.T) {
	conn := setupCustomerDB(t)
	seedSegments(t, conn, 5, 10, domain.SegmentChurnRisk, 1)
	seedSegments(t, conn, 5, 11, domain.SegmentGeneral, 1)

	svc := newTestService(conn, time.Now())
	views, err := svc.ListByStore(context.Background(), "5", "")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, domain.ChurnRiskHigh, views[0].ChurnRiskLevel)
	assert.Equal(t, domain.ChurnRiskLow, views[1].ChurnRiskLevel)
	assert.Nil(t, views[0].DaysSinceLastVisit)
}

func seedScored(t *testing.T, conn *gorm.DB, storeID snowflake.ID, id int64, segment domain.Segment, score int, lastVisit time.Time) {
	t.Helper()
	require.NoError(t, conn.Create(&domain.Customer{
		ID:            snowflake.ID(id),
		StoreID:       storeID,
		Name:          fmt.Sprintf("customer-%d", id),
		Segment:       segment,
		LoyaltyScore:  score,
		LastVisitDate: &lastVisit,
	}).Error)
}

func TestListByStoreSegmentFilter(t *testing.T) {
	conn := setupCustomerDB(t)
	today := time.Date(2025, time.November, 12, 0, 0, 0, 0, time.UTC)
	seedScored(t, conn, 1, 1, domain.SegmentLoyal, 95, today.AddDate(0, 0, -3))
	seedScored(t, conn, 1, 2, domain.SegmentAtRiskLoyal, 85, today.AddDate(0, 0, -7))
	seedScored(t, conn, 1, 3, domain.SegmentLoyal, 80, today.AddDate(0, 0, -2))
	seedScored(t, conn, 1, 4, domain.SegmentChurnRisk, 40, today.AddDate(0, 0, -30))
	seedScored(t, conn, 1, 5, domain.SegmentGeneral, 60, today.AddDate(0, 0, -1))
	seedScored(t, conn, 2, 6, domain.SegmentLoyal, 99, today)

	svc := newTestService(conn, today.Add(15*time.Hour))
	ids := func(views []domain.CustomerView) []snowflake.ID {
		out := make([]snowflake.ID, 0, len(views))
		for _, v := range views {
			out = append(out, v.ID)
		}
		return out
	}

	cases := []struct {
		segment string
		want    []snowflake.ID
	}{
		{segment: "all", want: []snowflake.ID{5, 3, 1, 2, 4}},
		{segment: "", want: []snowflake.ID{5, 3, 1, 2, 4}},
		{segment: "loyal", want: []snowflake.ID{1, 2, 3}},
		{segment: "AT_RISK_LOYAL", want: []snowflake.ID{2}},
		{segment: "churn_risk", want: []snowflake.ID{2, 4}},
	}
	for _, tc := range cases {
		t.Run("segment="+tc.segment, func(t *testing.T) {
			views, err := svc.ListByStore(context.Background(), "1", tc.segment)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(views))
		})
	}

	views, err := svc.ListByStore(context.Background(), "1", "all")
	require.NoError(t, err)
	require.NotNil(t, views[0].DaysSinceLastVisit)
	assert.Equal(t, 1, *views[0].DaysSinceLastVisit)

	_, err = svc.ListByStore(context.Background(), "1", "vip")
	assert.ErrorIs(t, err, domain.ErrInvalidSegment)
}

func TestGetDetail(t *testing.T) {
	conn := setupCustomerDB(t)
	today := time.Date(2025, time.November, 12, 0, 0, 0, 0, time.UTC)
	lastVisit := today.AddDate(0, 0, -10)
	require.NoError(t, conn.Create(&domain.Customer{
		ID:              42,
		StoreID:         1,
		Name:            "regular",
		PhoneNumber:     "010-1234-5678",
		TotalAmount:     500000,
		Points:          1500,
		TotalVisitCount: 23,
		LastVisitDate:   &lastVisit,
		Segment:         domain.SegmentAtRiskLoyal,
		LoyaltyScore:    70,
	}).Error)

	svc := newTestService(conn, today.Add(9*time.Hour))
	view, err := svc.GetDetail(context.Background(), "1", "42")
	require.NoError(t, err)
	assert.Equal(t, int64(500000), view.TotalAmount)
	assert.Equal(t, int64(1500), view.Points)
	assert.Equal(t, 70, view.LoyaltyScore)
	assert.Equal(t, domain.SegmentAtRiskLoyal, view.Segment)
	assert.Equal(t, domain.ChurnRiskMedium, view.ChurnRiskLevel)
	require.NotNil(t, view.DaysSinceLastVisit)
	assert.Equal(t, 10, *view.DaysSinceLastVisit)

	_, err = svc.GetDetail(context.Background(), "2", "42")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetDetail(context.Background(), "1", "abc")
	assert.ErrorIs(t, err, domain.ErrInvalidCustomer)

	_, err = svc.GetDetail(context.Background(), "0", "42")
	assert.ErrorIs(t, err, domain.ErrInvalidStore)
}

func TestUpdateSegmentsBatchesWithinStore(t *testing.T) {
	conn := setupCustomerDB(t)
	seedSegments(t, conn, 1, 1, domain.SegmentGeneral, 3)
	seedSegments(t, conn, 2, 50, domain.SegmentGeneral, 1)

	repo := repository.Provide()
	now := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	affected, err := repo.UpdateSegments(context.Background(), conn, 1, []domain.SegmentUpdate{
		{CustomerID: 1, Segment: domain.SegmentLoyal, LoyaltyScore: 96},
		{CustomerID: 3, Segment: domain.SegmentChurnRisk, LoyaltyScore: 12},
		{CustomerID: 50, Segment: domain.SegmentLoyal, LoyaltyScore: 99},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	customers, err := repo.FindAllByStore(context.Background(), conn, 1)
	require.NoError(t, err)
	require.Len(t, customers, 3)
	assert.Equal(t, domain.SegmentLoyal, customers[0].Segment)
	assert.Equal(t, 96, customers[0].LoyaltyScore)
	assert.Equal(t, domain.SegmentGeneral, customers[1].Segment)
	assert.Equal(t, 0, customers[1].LoyaltyScore)
	assert.Equal(t, domain.SegmentChurnRisk, customers[2].Segment)
	assert.Equal(t, 12, customers[2].LoyaltyScore)

	other, err := repo.FindAllByStore(context.Background(), conn, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.SegmentGeneral, other[0].Segment)
}
