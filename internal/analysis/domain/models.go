package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded sweep. Scheduled sweeps carry a period key so that
// each period is swept at most once.
type Run struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	TriggerSource Trigger        `gorm:"column:trigger_source;not null" json:"trigger"`
	PeriodKey     *string        `gorm:"uniqueIndex:ux_analysis_runs_period_key" json:"period_key,omitempty"`
	Status        RunStatus      `gorm:"not null" json:"status"`
	Summary       datatypes.JSON `gorm:"not null" json:"summary"`
	StartedAt     time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
}

func (Run) TableName() string {
	return "analysis_runs"
}

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailed  OutcomeStatus = "failed"
	OutcomeSkipped OutcomeStatus = "skipped"
)

const (
	SkipNoCustomers = "no_customers"
	SkipNoVisits    = "no_visits"
	SkipStoreBusy   = "store_busy"
)

// Outcome is the result of one store's pipeline run.
type Outcome struct {
	StoreID   snowflake.ID  `json:"store_id"`
	Status    OutcomeStatus `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	Customers int           `json:"customers"`
	Updated   int           `json:"updated"`
	Unmatched int           `json:"unmatched"`
	Discarded int           `json:"discarded"`
	Error     string        `json:"error,omitempty"`
}

// Summary aggregates the outcomes of one sweep.
type Summary struct {
	StoresProcessed int `json:"stores_processed"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	Skipped         int `json:"skipped"`
}

func (s *Summary) Add(o Outcome) {
	s.StoresProcessed++
	switch o.Status {
	case OutcomeSuccess:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
}
