package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/cohort"
	"github.com/smallbiznis/storepulse/internal/timewindow"
	"github.com/smallbiznis/storepulse/internal/visit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type visitRow struct {
	CustomerID snowflake.ID
	VisitDate  time.Time
	Amount     int64
}

func (r *repo) FindByStoreAndRange(ctx context.Context, db *gorm.DB, storeID snowflake.ID, start, end time.Time) ([]cohort.Visit, error) {
	var rows []visitRow
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id, visit_date, amount FROM daily_visits
		 WHERE store_id = ? AND visit_date >= ? AND visit_date <= ?`,
		storeID,
		timewindow.Truncate(start),
		timewindow.Truncate(end),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toVisits(rows), nil
}

func (r *repo) FindByCustomerAndRange(ctx context.Context, db *gorm.DB, storeID, customerID snowflake.ID, start, end time.Time) ([]cohort.Visit, error) {
	var rows []visitRow
	err := db.WithContext(ctx).Raw(
		`SELECT customer_id, visit_date, amount FROM daily_visits
		 WHERE store_id = ? AND customer_id = ? AND visit_date >= ? AND visit_date <= ?`,
		storeID,
		customerID,
		timewindow.Truncate(start),
		timewindow.Truncate(end),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toVisits(rows), nil
}

func (r *repo) SumAmount(ctx context.Context, db *gorm.DB, storeID snowflake.ID, start, end time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM daily_visits
		 WHERE store_id = ? AND visit_date >= ? AND visit_date <= ?`,
		storeID,
		timewindow.Truncate(start),
		timewindow.Truncate(end),
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) DistinctVisitorIDs(ctx context.Context, db *gorm.DB, storeID snowflake.ID, start, end time.Time) (cohort.VisitorSet, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT customer_id FROM daily_visits
		 WHERE store_id = ? AND visit_date >= ? AND visit_date <= ?`,
		storeID,
		timewindow.Truncate(start),
		timewindow.Truncate(end),
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return cohort.NewVisitorSet(ids...), nil
}

func toVisits(rows []visitRow) []cohort.Visit {
	visits := make([]cohort.Visit, 0, len(rows))
	for _, row := range rows {
		visits = append(visits, cohort.Visit{
			CustomerID: row.CustomerID,
			Date:       timewindow.Truncate(row.VisitDate.UTC()),
			Amount:     row.Amount,
		})
	}
	return visits
}
