package cohort

import (
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storepulse/internal/timewindow"
)

// Visit is the minimal projection of a visit row needed for bucketing.
type Visit struct {
	CustomerID snowflake.ID
	Date       time.Time
	Amount     int64
}

// Buckets holds per-customer and per-window aggregates for one store.
type Buckets struct {
	Windows []timewindow.Window

	// Counts and Amounts are indexed by window position, oldest first.
	Counts  map[snowflake.ID][]int64
	Amounts map[snowflake.ID][]int64

	WindowAmounts  []int64
	WindowVisitors []VisitorSet

	Bucketed int
	Ignored  int
}

// Bucket assigns each visit to the single window containing its date.
// Visits outside every window are counted in Ignored.
func Bucket(visits []Visit, windows []timewindow.Window) Buckets {
	b := Buckets{
		Windows:        windows,
		Counts:         make(map[snowflake.ID][]int64),
		Amounts:        make(map[snowflake.ID][]int64),
		WindowAmounts:  make([]int64, len(windows)),
		WindowVisitors: make([]VisitorSet, len(windows)),
	}
	for i := range b.WindowVisitors {
		b.WindowVisitors[i] = NewVisitorSet()
	}

	for _, v := range visits {
		idx := windowIndex(windows, v.Date)
		if idx < 0 {
			b.Ignored++
			continue
		}

		counts, ok := b.Counts[v.CustomerID]
		if !ok {
			counts = make([]int64, len(windows))
			b.Counts[v.CustomerID] = counts
			b.Amounts[v.CustomerID] = make([]int64, len(windows))
		}
		counts[idx]++
		b.Amounts[v.CustomerID][idx] += v.Amount
		b.WindowAmounts[idx] += v.Amount
		b.WindowVisitors[idx].Add(v.CustomerID)
		b.Bucketed++
	}
	return b
}

// CountsFor returns the customer's visit counts oldest first, zero-filled when absent.
func (b Buckets) CountsFor(customerID snowflake.ID) []int64 {
	out := make([]int64, len(b.Windows))
	copy(out, b.Counts[customerID])
	return out
}

// AmountFor returns the customer's spend summed across all windows.
func (b Buckets) AmountFor(customerID snowflake.ID) int64 {
	var total int64
	for _, amount := range b.Amounts[customerID] {
		total += amount
	}
	return total
}

// Empty reports whether no visit landed in any window.
func (b Buckets) Empty() bool {
	return b.Bucketed == 0
}

func windowIndex(windows []timewindow.Window, t time.Time) int {
	day := timewindow.Truncate(t)
	idx := sort.Search(len(windows), func(i int) bool {
		return !windows[i].End.Before(day)
	})
	if idx < len(windows) && windows[idx].Contains(day) {
		return idx
	}
	return -1
}
