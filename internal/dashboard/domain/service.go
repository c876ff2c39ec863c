package domain

import (
	"context"
	"errors"
)

type Service interface {
	WeeklySummary(ctx context.Context, storeID string) (WeeklySummary, error)
}

var ErrInvalidStore = errors.New("invalid_store")
