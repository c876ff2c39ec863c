package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DailyVisit is one recorded visit of a customer to a store on a calendar day.
type DailyVisit struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	StoreID    snowflake.ID `gorm:"not null;index:idx_daily_visits_store_date,priority:1" json:"store_id"`
	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`
	VisitDate  time.Time    `gorm:"not null;index:idx_daily_visits_store_date,priority:2" json:"visit_date"`
	Amount     int64        `gorm:"not null;default:0" json:"amount"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (DailyVisit) TableName() string {
	return "daily_visits"
}

const (
	GraphModeMonth = "month"
	GraphModeWeek  = "week"

	monthGraphWindows = 6
	weekGraphWindows  = 8
)

// GraphWindows returns how many windows a graph mode renders.
func GraphWindows(mode string) int {
	if mode == GraphModeWeek {
		return weekGraphWindows
	}
	return monthGraphWindows
}

type GraphPoint struct {
	Label      string `json:"label"`
	VisitCount int64  `json:"visit_count"`
	Amount     int64  `json:"amount"`
}

type VisitGraph struct {
	Mode   string       `json:"mode"`
	Points []GraphPoint `json:"points"`
}
