package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Segment is the loyalty classification assigned by the scoring sweep.
type Segment string

const (
	SegmentGeneral     Segment = "GENERAL"
	SegmentLoyal       Segment = "LOYAL"
	SegmentChurnRisk   Segment = "CHURN_RISK"
	SegmentAtRiskLoyal Segment = "AT_RISK_LOYAL"
)

// ParseSegment matches case-insensitively and falls back to SegmentGeneral.
func ParseSegment(raw string) Segment {
	switch s := Segment(strings.ToUpper(strings.TrimSpace(raw))); s {
	case SegmentGeneral, SegmentLoyal, SegmentChurnRisk, SegmentAtRiskLoyal:
		return s
	default:
		return SegmentGeneral
	}
}

// ListOrder selects how a store's customer list is sorted.
type ListOrder int

const (
	OrderByLastVisit ListOrder = iota
	OrderByLoyaltyScore
)

const (
	FilterAll         = "all"
	FilterLoyal       = "loyal"
	FilterAtRiskLoyal = "at_risk_loyal"
	FilterChurnRisk   = "churn_risk"
)

// ListFilter narrows a customer list to a set of segments.
// Nil Segments means every segment.
type ListFilter struct {
	Segments []Segment
	Order    ListOrder
}

// ParseListFilter maps the public segment filter to stored segments.
// "loyal" and "churn_risk" both include AT_RISK_LOYAL.
func ParseListFilter(raw string) (ListFilter, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", FilterAll:
		return ListFilter{Order: OrderByLastVisit}, nil
	case FilterLoyal:
		return ListFilter{
			Segments: []Segment{SegmentLoyal, SegmentAtRiskLoyal},
			Order:    OrderByLoyaltyScore,
		}, nil
	case FilterAtRiskLoyal:
		return ListFilter{
			Segments: []Segment{SegmentAtRiskLoyal},
			Order:    OrderByLoyaltyScore,
		}, nil
	case FilterChurnRisk:
		return ListFilter{
			Segments: []Segment{SegmentChurnRisk, SegmentAtRiskLoyal},
			Order:    OrderByLoyaltyScore,
		}, nil
	default:
		return ListFilter{}, ErrInvalidSegment
	}
}

type ChurnRiskLevel string

const (
	ChurnRiskHigh   ChurnRiskLevel = "HIGH"
	ChurnRiskMedium ChurnRiskLevel = "MEDIUM"
	ChurnRiskLow    ChurnRiskLevel = "LOW"
)

func (s Segment) ChurnRiskLevel() ChurnRiskLevel {
	switch s {
	case SegmentChurnRisk:
		return ChurnRiskHigh
	case SegmentAtRiskLoyal:
		return ChurnRiskMedium
	default:
		return ChurnRiskLow
	}
}

type Customer struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	StoreID         snowflake.ID `gorm:"not null;index" json:"store_id"`
	Name            string       `gorm:"not null" json:"name"`
	PhoneNumber     string       `gorm:"not null;default:''" json:"phone_number"`
	TotalAmount     int64        `gorm:"not null;default:0" json:"total_amount"`
	Points          int64        `gorm:"not null;default:0" json:"points"`
	TotalVisitCount int64        `gorm:"not null;default:0" json:"total_visit_count"`
	LastVisitDate   *time.Time   `json:"last_visit_date,omitempty"`
	Segment         Segment      `gorm:"not null;default:'GENERAL'" json:"segment"`
	LoyaltyScore    int          `gorm:"not null;default:0" json:"loyalty_score"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// SegmentUpdate is one reconciled scoring result ready to persist.
type SegmentUpdate struct {
	CustomerID   snowflake.ID
	Segment      Segment
	LoyaltyScore int
}
