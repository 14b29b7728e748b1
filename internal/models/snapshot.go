// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package models

import "time"

// Period identifies a reporting window for analytics snapshots.
type Period string

// Reporting periods. "today" starts at local midnight; "week" and "month"
// are trailing windows (7 and 30 days), not calendar-aligned; "all" is
// unbounded.
const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod validates a period string. Returns PeriodAll, false for
// unrecognized input.
func ParsePeriod(s string) (Period, bool) {
	switch Period(s) {
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodAll:
		return Period(s), true
	default:
		return PeriodAll, false
	}
}

// WindowStart returns the inclusive start of the period window relative to
// now, and whether the period is bounded at all.
func (p Period) WindowStart(now time.Time) (time.Time, bool) {
	switch p {
	case PeriodToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), true
	case PeriodWeek:
		return now.AddDate(0, 0, -7), true
	case PeriodMonth:
		return now.AddDate(0, 0, -30), true
	default:
		return time.Time{}, false
	}
}

// TopProduct is one entry in the snapshot's product ranking.
type TopProduct struct {
	Name     string  `json:"name"`
	Count    int     `json:"count"`
	Revenue  float64 `json:"revenue"`
	Share    float64 `json:"share"` // fraction of total sales, 0..1
	Category string  `json:"category"`
	Emoji    string  `json:"emoji"`
}

// TopCategory is one entry in the snapshot's category ranking.
type TopCategory struct {
	Name    string  `json:"name"`
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
	Share   float64 `json:"share"`
	Color   string  `json:"color"`
}

// SeriesBucket is one point in the snapshot's time series. Bucket
// granularity depends on the period: hourly for today, daily for week and
// month, weekly otherwise.
type SeriesBucket struct {
	// Key is the grouping key (stable, machine-oriented).
	Key string `json:"key"`

	// Label is the display label ("14:00", "Mon", "Jan 5").
	Label string `json:"label"`

	// Start is the bucket start in epoch milliseconds; buckets are sorted
	// ascending by this value.
	Start int64 `json:"start"`

	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

// Comparison reports percent change against the immediately preceding window
// of the same length. When the previous value is zero the change is defined
// as 100 for any positive current value, else 0.
type Comparison struct {
	PreviousCount   int     `json:"previousCount"`
	PreviousRevenue float64 `json:"previousRevenue"`
	PreviousAverage float64 `json:"previousAverage"`

	CountChangePct   float64 `json:"countChangePct"`
	RevenueChangePct float64 `json:"revenueChangePct"`
	AverageChangePct float64 `json:"averageChangePct"`
}

// AnalyticsSnapshot is a memoized, derived view over the events of one
// reporting period. It is a pure function of (event set, period) at the
// moment of computation and is never mutated after creation, only replaced.
type AnalyticsSnapshot struct {
	Period      Period    `json:"period"`
	GeneratedAt time.Time `json:"generatedAt"`

	TotalSales   int     `json:"totalSales"`
	TotalRevenue float64 `json:"totalRevenue"`
	AveragePrice float64 `json:"averagePrice"`
	MinPrice     float64 `json:"minPrice"`
	MaxPrice     float64 `json:"maxPrice"`
	MedianPrice  float64 `json:"medianPrice"`

	TopProducts   []TopProduct  `json:"topProducts"`
	TopCategories []TopCategory `json:"topCategories"`

	// Hourly is a 24-bucket histogram indexed by hour of day.
	Hourly [24]int `json:"hourly"`

	// DayOfWeek is a 7-bucket histogram indexed Sunday=0.
	DayOfWeek [7]int `json:"dayOfWeek"`

	Series []SeriesBucket `json:"series"`

	// Insights holds at most five generated messages, in rule order.
	Insights []string `json:"insights"`

	// Comparison is nil for PeriodAll.
	Comparison *Comparison `json:"comparison,omitempty"`
}

// RealTimeStats is computed directly from the working set on every call,
// never cached.
type RealTimeStats struct {
	TotalSales     int     `json:"totalSales"`
	SalesLast24h   int     `json:"salesLast24h"`
	SalesLastHour  int     `json:"salesLastHour"`
	TotalRevenue   float64 `json:"totalRevenue"`
	RevenueLast24h float64 `json:"revenueLast24h"`

	// LastSaleTime is epoch milliseconds of the most recent sale, 0 when
	// no sales have been observed.
	LastSaleTime int64 `json:"lastSaleTime"`

	// IsActive is true iff at least one sale occurred in the last hour.
	IsActive bool `json:"isActive"`
}
