package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/analysis/domain"
	dbpkg "github.com/smallbiznis/storepulse/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	if len(run.Summary) == 0 {
		run.Summary = datatypes.JSON(`{}`)
	}
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) Finish(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.RunStatus, summary datatypes.JSON, finishedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE analysis_runs SET status = ?, summary = ?, finished_at = ? WHERE id = ?`,
		status,
		summary,
		finishedAt,
		id,
	).Error
}

func (r *repo) FindByPeriod(ctx context.Context, db *gorm.DB, periodKey string) (*domain.Run, error) {
	var run domain.Run
	err := db.WithContext(ctx).
		Where("period_key = ?", periodKey).
		Take(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *repo) ClaimPeriod(ctx context.Context, db *gorm.DB, run *domain.Run, staleBefore time.Time) (bool, error) {
	if run.PeriodKey == nil {
		return false, errors.New("period key is required")
	}

	claimed := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := r.FindByPeriod(ctx, tx, *run.PeriodKey)
		if err != nil {
			return err
		}
		if existing == nil {
			if err := r.Insert(ctx, tx, run); err != nil {
				return err
			}
			claimed = true
			return nil
		}
		if existing.Status == domain.RunStatusCompleted {
			return nil
		}
		if existing.Status == domain.RunStatusRunning && !existing.StartedAt.Before(staleBefore) {
			return nil
		}

		res := tx.WithContext(ctx).Exec(
			`UPDATE analysis_runs SET trigger_source = ?, status = ?, started_at = ?, finished_at = NULL
			 WHERE id = ? AND status = ?`,
			run.TriggerSource,
			domain.RunStatusRunning,
			run.StartedAt,
			existing.ID,
			existing.Status,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			run.ID = existing.ID
			claimed = true
		}
		return nil
	})
	if dbpkg.IsDuplicateKeyErr(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return claimed, nil
}
