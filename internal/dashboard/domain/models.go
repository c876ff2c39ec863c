package domain

// WeeklySummary compares this week to date against the same span of last week.
type WeeklySummary struct {
	StartDate            string  `json:"start_date"`
	EndDate              string  `json:"end_date"`
	TotalSales           int64   `json:"total_sales"`
	SalesChange          int64   `json:"sales_change"`
	VisitedCustomerCount int64   `json:"visited_customer_count"`
	CustomerCountChange  int64   `json:"customer_count_change"`
	RevisitRate          float64 `json:"revisit_rate"`
	RevisitRateChange    float64 `json:"revisit_rate_change"`

	// Degraded lists historical lookups that fell back to empty data.
	Degraded []string `json:"-"`
}
