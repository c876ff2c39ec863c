package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/store/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Store, error) {
	var stores []domain.Store
	err := db.WithContext(ctx).
		Model(&domain.Store{}).
		Order("id asc").
		Find(&stores).Error
	if err != nil {
		return nil, err
	}
	return stores, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Store, error) {
	var store domain.Store
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, metadata, created_at, updated_at FROM stores WHERE id = ?`,
		id,
	).Scan(&store).Error
	if err != nil {
		return nil, err
	}
	if store.ID == 0 {
		return nil, nil
	}
	return &store, nil
}
