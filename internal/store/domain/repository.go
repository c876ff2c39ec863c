package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	List(ctx context.Context, db *gorm.DB) ([]Store, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Store, error)
}
