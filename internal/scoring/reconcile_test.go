package scoring

import (
	"testing"

	customerdomain "github.com/smallbiznis/storepulse/internal/customer/domain"
	"github.com/stretchr/testify/assert"
)

func TestLoyaltyScoreRoundsHalfUp(t *testing.T) {
	assert.Equal(t, 96, LoyaltyScore(0.958))
	assert.Equal(t, 13, LoyaltyScore(0.125))
	assert.Equal(t, 0, LoyaltyScore(0))
	assert.Equal(t, 100, LoyaltyScore(1))
	assert.Equal(t, 0, LoyaltyScore(-0.001))
}

func TestReconcileLastWinsAndCounts(t *testing.T) {
	customers := []CustomerSnapshot{{ID: 1}, {ID: 2}, {ID: 3}}
	results := []Result{
		{CustomerID: "2", Segment: "churn_risk", PredictedLoyaltyScore: 0.1},
		{CustomerID: "not-a-number", Segment: "LOYAL", PredictedLoyaltyScore: 0.9},
		{CustomerID: "1", Segment: "LOYAL", PredictedLoyaltyScore: 0.958},
		{CustomerID: "2", Segment: " At_Risk_Loyal ", PredictedLoyaltyScore: 0.42},
		{CustomerID: "99", Segment: "LOYAL", PredictedLoyaltyScore: 0.5},
	}

	first := Reconcile(customers, results)
	assert.Equal(t, 2, first.Updated)
	assert.Equal(t, 1, first.Unmatched)
	assert.Equal(t, 2, first.Discarded)
	assert.Equal(t, []string{"not-a-number", "99"}, first.DiscardedIDs)
	assert.Equal(t, []customerdomain.SegmentUpdate{
		{CustomerID: 1, Segment: customerdomain.SegmentLoyal, LoyaltyScore: 96},
		{CustomerID: 2, Segment: customerdomain.SegmentAtRiskLoyal, LoyaltyScore: 42},
	}, first.Updates)

	for range 5 {
		assert.Equal(t, first, Reconcile(customers, results))
	}
}

func TestReconcileUnknownSegmentDefaultsToGeneral(t *testing.T) {
	out := Reconcile([]CustomerSnapshot{{ID: 5}}, []Result{{CustomerID: "5", Segment: "whale", PredictedLoyaltyScore: 0.7}})
	assert.Equal(t, customerdomain.SegmentGeneral, out.Updates[0].Segment)
	assert.Equal(t, 70, out.Updates[0].LoyaltyScore)
}

func TestReconcileDiscardsIDsOutsideRequest(t *testing.T) {
	customers := []CustomerSnapshot{{ID: 7}}
	results := []Result{
		{CustomerID: "8", Segment: "LOYAL", PredictedLoyaltyScore: 0.9},
		{CustomerID: "7", Segment: "LOYAL", PredictedLoyaltyScore: 0.8},
		{CustomerID: "8", Segment: "GENERAL", PredictedLoyaltyScore: 0.1},
	}

	out := Reconcile(customers, results)
	assert.Equal(t, 1, out.Updated)
	assert.Equal(t, 0, out.Unmatched)
	assert.Equal(t, 2, out.Discarded)
	assert.Equal(t, []string{"8", "8"}, out.DiscardedIDs)
}
