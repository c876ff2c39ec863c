package domain

import (
	"context"
	"errors"
)

type Service interface {
	List(ctx context.Context) ([]Store, error)
	GetByID(ctx context.Context, id string) (Store, error)
}

var (
	ErrInvalidID = errors.New("invalid_store_id")
	ErrNotFound  = errors.New("store_not_found")
)
