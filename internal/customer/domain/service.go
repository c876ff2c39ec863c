package domain

import (
	"context"
	"errors"
)

type CustomerView struct {
	Customer
	ChurnRiskLevel ChurnRiskLevel `json:"churn_risk_level"`
	// DaysSinceLastVisit is nil for customers that never visited.
	DaysSinceLastVisit *int `json:"days_since_last_visit"`
}

type DeclinedLoyalSummary struct {
	LoyalCount   int64 `json:"loyal_count"`
	AtRiskCount  int64 `json:"at_risk_loyal_count"`
	DeclineRatio int   `json:"decline_ratio"`
}

type Service interface {
	ListByStore(ctx context.Context, storeID, segment string) ([]CustomerView, error)
	GetDetail(ctx context.Context, storeID, customerID string) (CustomerView, error)
	DeclinedLoyalSummary(ctx context.Context, storeID string) (DeclinedLoyalSummary, error)
}

var (
	ErrInvalidStore    = errors.New("invalid_store")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidSegment  = errors.New("invalid_segment")
	ErrNotFound        = errors.New("not_found")
)
