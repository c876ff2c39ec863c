package cohort

import (
	"sort"

	"github.com/bwmarrin/snowflake"
)

// VisitorSet is a set of distinct customer ids seen in a window.
type VisitorSet map[snowflake.ID]struct{}

func NewVisitorSet(ids ...snowflake.ID) VisitorSet {
	set := make(VisitorSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (s VisitorSet) Add(id snowflake.ID) {
	s[id] = struct{}{}
}

func (s VisitorSet) Has(id snowflake.ID) bool {
	_, ok := s[id]
	return ok
}

func (s VisitorSet) Len() int {
	return len(s)
}

// Intersect counts ids present in both sets.
func (s VisitorSet) Intersect(other VisitorSet) int {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	n := 0
	for id := range small {
		if large.Has(id) {
			n++
		}
	}
	return n
}

// IDs returns the members in ascending order.
func (s VisitorSet) IDs() []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RevisitRate is the share of previous-window visitors that also visited in the
// current window. It is 0 when previous is empty.
func RevisitRate(current, previous VisitorSet) float64 {
	if previous.Len() == 0 {
		return 0
	}
	return float64(current.Intersect(previous)) / float64(previous.Len())
}

func Delta(a, b int64) int64 {
	return a - b
}

func DeltaFloat(a, b float64) float64 {
	return a - b
}
