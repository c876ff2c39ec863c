package domain

import (
	"context"
	"errors"
)

type Service interface {
	// RunAllStores sweeps every store in order and always returns a summary.
	RunAllStores(ctx context.Context) Summary
	// TriggerAllStores starts RunAllStores in the background and returns immediately.
	TriggerAllStores(ctx context.Context) error
	// RunStore runs the pipeline for one store synchronously. It refuses with
	// ErrSweepInProgress during a sweep and ErrStoreBusy while another run
	// holds the store.
	RunStore(ctx context.Context, storeID string) (Outcome, error)
	// RunPeriod sweeps all stores once for periodKey. It reports false when the
	// period was already swept or is being swept elsewhere.
	RunPeriod(ctx context.Context, periodKey string) (Summary, bool, error)
}

var (
	ErrSweepInProgress = errors.New("analysis_sweep_in_progress")
	ErrSweepLocked     = errors.New("analysis_sweep_locked")
	ErrStoreBusy       = errors.New("analysis_store_busy")
	ErrInvalidStore    = errors.New("invalid_store")
	ErrStoreNotFound   = errors.New("store_not_found")
)
