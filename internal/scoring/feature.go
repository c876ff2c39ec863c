package scoring

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/config"
	customerdomain "github.com/smallbiznis/storepulse/internal/customer/domain"
	"github.com/smallbiznis/storepulse/internal/timewindow"
)

// CustomerSnapshot is the customer state a feature vector is derived from.
type CustomerSnapshot struct {
	ID              snowflake.ID
	TotalAmount     int64
	TotalVisitCount int64
	LastVisitDate   *time.Time
}

func SnapshotOf(c customerdomain.Customer) CustomerSnapshot {
	return CustomerSnapshot{
		ID:              c.ID,
		TotalAmount:     c.TotalAmount,
		TotalVisitCount: c.TotalVisitCount,
		LastVisitDate:   c.LastVisitDate,
	}
}

// FeatureVector is one customer's record in a scoring request.
type FeatureVector struct {
	CustomerID         snowflake.ID
	Amount             int64
	TotalVisits        int64
	DaysSinceLastVisit int
	// Counts holds visits per window, oldest first.
	Counts []int64
	Unit   string
}

// MarshalJSON writes a flat object. Window keys run from the oldest
// (visits_N_<unit>_ago) down to visits_1_<unit>_ago.
func (v FeatureVector) MarshalJSON() ([]byte, error) {
	unit := v.Unit
	if unit == "" {
		unit = "week"
	}

	var buf bytes.Buffer
	buf.WriteString(`{"customer_id":`)
	id, err := json.Marshal(v.CustomerID.String())
	if err != nil {
		return nil, err
	}
	buf.Write(id)
	buf.WriteString(`,"amount":`)
	buf.WriteString(strconv.FormatInt(v.Amount, 10))
	buf.WriteString(`,"total_visits":`)
	buf.WriteString(strconv.FormatInt(v.TotalVisits, 10))
	buf.WriteString(`,"days_since_last_visit":`)
	buf.WriteString(strconv.Itoa(v.DaysSinceLastVisit))

	n := len(v.Counts)
	for i, count := range v.Counts {
		buf.WriteString(`,"visits_`)
		buf.WriteString(strconv.Itoa(n - i))
		buf.WriteString(`_`)
		buf.WriteString(unit)
		buf.WriteString(`_ago":`)
		buf.WriteString(strconv.FormatInt(count, 10))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Builder turns customer snapshots and bucketed counts into feature vectors.
// One Builder is used for a whole store batch so every vector shares a policy.
type Builder struct {
	Anchor          time.Time
	Granularity     timewindow.Granularity
	NoVisitSentinel int
	AmountPolicy    string
}

// NewBuilder snapshots the policy for one run anchored at today.
func NewBuilder(today time.Time, g timewindow.Granularity, policy config.AnalysisPolicy) Builder {
	return Builder{
		Anchor:          timewindow.Truncate(today),
		Granularity:     g,
		NoVisitSentinel: policy.NoVisitSentinelDays,
		AmountPolicy:    policy.AmountPolicy,
	}
}

// Build assembles the vector. windowAmount is used only under the window amount policy.
func (b Builder) Build(customer CustomerSnapshot, counts []int64, windowAmount int64) FeatureVector {
	amount := customer.TotalAmount
	if b.AmountPolicy == config.AmountPolicyWindow {
		amount = windowAmount
	}

	days := b.NoVisitSentinel
	if customer.LastVisitDate != nil && !customer.LastVisitDate.IsZero() {
		days = max(timewindow.DaysBetween(*customer.LastVisitDate, b.Anchor), 0)
	}

	copied := make([]int64, len(counts))
	copy(copied, counts)

	return FeatureVector{
		CustomerID:         customer.ID,
		Amount:             amount,
		TotalVisits:        customer.TotalVisitCount,
		DaysSinceLastVisit: days,
		Counts:             copied,
		Unit:               unitOf(b.Granularity),
	}
}

func unitOf(g timewindow.Granularity) string {
	if g == timewindow.Week {
		return "week"
	}
	return "month"
}
