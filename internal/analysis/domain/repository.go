package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, run *Run) error
	Finish(ctx context.Context, db *gorm.DB, id snowflake.ID, status RunStatus, summary datatypes.JSON, finishedAt time.Time) error
	FindByPeriod(ctx context.Context, db *gorm.DB, periodKey string) (*Run, error)
	// ClaimPeriod reserves periodKey for run. Failed claims and running claims
	// older than staleBefore are taken over; completed ones never are.
	ClaimPeriod(ctx context.Context, db *gorm.DB, run *Run, staleBefore time.Time) (bool, error)
}
