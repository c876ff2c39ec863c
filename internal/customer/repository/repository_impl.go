package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/customer/domain"
	"gorm.io/gorm"
)

const updateChunkSize = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindAllByStore(ctx context.Context, db *gorm.DB, storeID snowflake.ID) ([]domain.Customer, error) {
	var customers []domain.Customer
	err := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("store_id = ?", storeID).
		Order("id asc").
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) FindByStore(ctx context.Context, db *gorm.DB, storeID snowflake.ID, filter domain.ListFilter) ([]domain.Customer, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("store_id = ?", storeID)
	if len(filter.Segments) > 0 {
		stmt = stmt.Where("segment IN ?", filter.Segments)
	}
	switch filter.Order {
	case domain.OrderByLoyaltyScore:
		stmt = stmt.Order("loyalty_score desc, id asc")
	default:
		stmt = stmt.Order("CASE WHEN last_visit_date IS NULL THEN 1 ELSE 0 END, last_visit_date desc, id asc")
	}

	var customers []domain.Customer
	if err := stmt.Find(&customers).Error; err != nil {
		return nil, err
	}
	return customers, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, storeID, customerID snowflake.ID) (*domain.Customer, error) {
	var customers []domain.Customer
	err := db.WithContext(ctx).
		Model(&domain.Customer{}).
		Where("store_id = ? AND id = ?", storeID, customerID).
		Limit(1).
		Find(&customers).Error
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return &customers[0], nil
}

func (r *repo) UpdateSegments(ctx context.Context, db *gorm.DB, storeID snowflake.ID, updates []domain.SegmentUpdate, now time.Time) (int64, error) {
	var affected int64
	for start := 0; start < len(updates); start += updateChunkSize {
		end := min(start+updateChunkSize, len(updates))
		chunk := updates[start:end]

		var segmentCase, scoreCase strings.Builder
		segmentArgs := make([]any, 0, len(chunk)*2)
		scoreArgs := make([]any, 0, len(chunk)*2)
		ids := make([]snowflake.ID, 0, len(chunk))
		for _, u := range chunk {
			segmentCase.WriteString(" WHEN ? THEN ?")
			scoreCase.WriteString(" WHEN ? THEN ?")
			segmentArgs = append(segmentArgs, u.CustomerID, string(u.Segment))
			scoreArgs = append(scoreArgs, u.CustomerID, u.LoyaltyScore)
			ids = append(ids, u.CustomerID)
		}

		sql := `UPDATE customers SET segment = CASE id` + segmentCase.String() + ` ELSE segment END, ` +
			`loyalty_score = CASE id` + scoreCase.String() + ` ELSE loyalty_score END, ` +
			`updated_at = ? WHERE store_id = ? AND id IN ?`

		args := make([]any, 0, len(segmentArgs)+len(scoreArgs)+3)
		args = append(args, segmentArgs...)
		args = append(args, scoreArgs...)
		args = append(args, now, storeID, ids)

		res := db.WithContext(ctx).Exec(sql, args...)
		if res.Error != nil {
			return affected, res.Error
		}
		affected += res.RowsAffected
	}
	return affected, nil
}

func (r *repo) CountBySegments(ctx context.Context, db *gorm.DB, storeID snowflake.ID, segments []domain.Segment) (map[domain.Segment]int64, error) {
	counts := make(map[domain.Segment]int64, len(segments))
	for _, s := range segments {
		counts[s] = 0
	}
	if len(segments) == 0 {
		return counts, nil
	}

	var rows []struct {
		Segment domain.Segment
		Total   int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT segment, COUNT(*) AS total FROM customers
		 WHERE store_id = ? AND segment IN ?
		 GROUP BY segment`,
		storeID,
		segments,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.Segment] = row.Total
	}
	return counts, nil
}
