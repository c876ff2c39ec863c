package domain

import (
	"context"
	"errors"
)

type Service interface {
	// VisitGraph renders store-wide visit counts and sales per window.
	// A non-empty customerID narrows the graph to that customer.
	VisitGraph(ctx context.Context, storeID, customerID, mode string) (VisitGraph, error)
}

var (
	ErrInvalidStore    = errors.New("invalid_store")
	ErrInvalidCustomer = errors.New("invalid_customer")
	ErrInvalidMode     = errors.New("invalid_graph_mode")
)
