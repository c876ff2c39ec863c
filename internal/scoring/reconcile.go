package scoring

import (
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	customerdomain "github.com/smallbiznis/storepulse/internal/customer/domain"
)

// Reconciliation is the outcome of matching scoring results to customers.
type Reconciliation struct {
	Updates   []customerdomain.SegmentUpdate
	Updated   int
	Unmatched int
	Discarded int
	// DiscardedIDs holds the raw ids that failed to parse or name no
	// customer of the request, in result order.
	DiscardedIDs []string
}

// LoyaltyScore scales a 0..1 score to a whole percentage, rounding half up.
func LoyaltyScore(score float64) int {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return int(math.Floor(score*100 + 0.5))
}

// Reconcile maps results onto customers. A later result for the same
// customer id replaces an earlier one. Updates follow customer order.
func Reconcile(customers []CustomerSnapshot, results []Result) Reconciliation {
	var out Reconciliation

	known := make(map[snowflake.ID]struct{}, len(customers))
	for _, c := range customers {
		known[c.ID] = struct{}{}
	}

	byID := make(map[snowflake.ID]Result, len(results))
	for _, r := range results {
		id, err := snowflake.ParseString(strings.TrimSpace(r.CustomerID))
		if _, ok := known[id]; err != nil || !ok {
			out.Discarded++
			out.DiscardedIDs = append(out.DiscardedIDs, r.CustomerID)
			continue
		}
		byID[id] = r
	}

	out.Updates = make([]customerdomain.SegmentUpdate, 0, len(customers))
	for _, c := range customers {
		r, ok := byID[c.ID]
		if !ok {
			out.Unmatched++
			continue
		}
		out.Updates = append(out.Updates, customerdomain.SegmentUpdate{
			CustomerID:   c.ID,
			Segment:      customerdomain.ParseSegment(r.Segment),
			LoyaltyScore: LoyaltyScore(r.PredictedLoyaltyScore),
		})
	}
	out.Updated = len(out.Updates)
	return out
}
