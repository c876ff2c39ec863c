package scoring

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/storepulse/internal/config"
	"github.com/smallbiznis/storepulse/internal/timewindow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUsesLifetimeAmountByDefault(t *testing.T) {
	last := time.Date(2025, time.October, 20, 0, 0, 0, 0, time.UTC)
	b := NewBuilder(time.Date(2025, time.November, 1, 18, 30, 0, 0, time.UTC), timewindow.MonthCompleted, config.DefaultAnalysisPolicy())

	counts := []int64{0, 1, 2, 0, 3, 4}
	v := b.Build(CustomerSnapshot{ID: 42, TotalAmount: 90000, TotalVisitCount: 31, LastVisitDate: &last}, counts, 1234)

	assert.Equal(t, int64(90000), v.Amount)
	assert.Equal(t, int64(31), v.TotalVisits)
	assert.Equal(t, 12, v.DaysSinceLastVisit)
	assert.Equal(t, counts, v.Counts)
	assert.Equal(t, "month", v.Unit)

	counts[0] = 99
	assert.Equal(t, int64(0), v.Counts[0])
}

func TestBuildWindowAmountAndSentinel(t *testing.T) {
	policy := config.DefaultAnalysisPolicy()
	policy.AmountPolicy = config.AmountPolicyWindow
	policy.NoVisitSentinelDays = 9999
	b := NewBuilder(time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC), timewindow.Week, policy)

	v := b.Build(CustomerSnapshot{ID: 7, TotalAmount: 500}, make([]int64, 8), 120)
	assert.Equal(t, int64(120), v.Amount)
	assert.Equal(t, 9999, v.DaysSinceLastVisit)
	assert.Equal(t, "week", v.Unit)
}

func TestBuildClampsFutureLastVisit(t *testing.T) {
	future := time.Date(2025, time.November, 3, 0, 0, 0, 0, time.UTC)
	b := NewBuilder(time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC), timewindow.Week, config.DefaultAnalysisPolicy())
	v := b.Build(CustomerSnapshot{ID: 7, LastVisitDate: &future}, nil, 0)
	assert.Equal(t, 0, v.DaysSinceLastVisit)
}

func TestFeatureVectorJSONOrdersOldestFirst(t *testing.T) {
	v := FeatureVector{
		CustomerID:         1234567890123,
		Amount:             5000,
		TotalVisits:        9,
		DaysSinceLastVisit: 3,
		Counts:             []int64{8, 7, 6},
		Unit:               "week",
	}

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t,
		`{"customer_id":"1234567890123","amount":5000,"total_visits":9,"days_since_last_visit":3,`+
			`"visits_3_week_ago":8,"visits_2_week_ago":7,"visits_1_week_ago":6}`,
		string(raw),
	)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(8), decoded["visits_3_week_ago"])
	assert.Equal(t, float64(6), decoded["visits_1_week_ago"])
}
