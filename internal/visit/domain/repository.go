package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/cohort"
	"gorm.io/gorm"
)

// Repository reads visit history. Date bounds are calendar days and inclusive.
type Repository interface {
	FindByStoreAndRange(ctx context.Context, db *gorm.DB, storeID snowflake.ID, start, end time.Time) ([]cohort.Visit, error)
	FindByCustomerAndRange(ctx context.Context, db *gorm.DB, storeID, customerID snowflake.ID, start, end time.Time) ([]cohort.Visit, error)
	SumAmount(ctx context.Context, db *gorm.DB, storeID snowflake.ID, start, end time.Time) (int64, error)
	DistinctVisitorIDs(ctx context.Context, db *gorm.DB, storeID snowflake.ID, start, end time.Time) (cohort.VisitorSet, error)
}
