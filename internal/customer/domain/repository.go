package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindAllByStore(ctx context.Context, db *gorm.DB, storeID snowflake.ID) ([]Customer, error)
	FindByStore(ctx context.Context, db *gorm.DB, storeID snowflake.ID, filter ListFilter) ([]Customer, error)
	FindByID(ctx context.Context, db *gorm.DB, storeID, customerID snowflake.ID) (*Customer, error)
	// UpdateSegments writes every update for the store in batched statements.
	// Callers run it inside the store's transaction.
	UpdateSegments(ctx context.Context, db *gorm.DB, storeID snowflake.ID, updates []SegmentUpdate, now time.Time) (int64, error)
	CountBySegments(ctx context.Context, db *gorm.DB, storeID snowflake.ID, segments []Segment) (map[Segment]int64, error)
}
