// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/tomtom215/vendwatch/internal/models"
)

// maxTopProducts caps the product ranking; the chart layer trims further
// for presentation.
const maxTopProducts = 10

// maxInsights caps the generated message list.
const maxInsights = 5

// compute builds a full snapshot over the window's events. Events arrive
// in working-set order (newest first); grouping ties resolve in that order.
func compute(period models.Period, events []models.PurchaseEvent, now time.Time) *models.AnalyticsSnapshot {
	snap := &models.AnalyticsSnapshot{
		Period:        period,
		GeneratedAt:   now,
		TopProducts:   []models.TopProduct{},
		TopCategories: []models.TopCategory{},
		Series:        []models.SeriesBucket{},
		Insights:      []string{},
	}

	if len(events) == 0 {
		return snap
	}

	prices := make([]float64, 0, len(events))
	snap.MinPrice = events[0].Price
	snap.MaxPrice = events[0].Price

	for _, ev := range events {
		snap.TotalSales++
		snap.TotalRevenue += ev.Price
		prices = append(prices, ev.Price)
		if ev.Price < snap.MinPrice {
			snap.MinPrice = ev.Price
		}
		if ev.Price > snap.MaxPrice {
			snap.MaxPrice = ev.Price
		}
		if ev.Hour >= 0 && ev.Hour < 24 {
			snap.Hourly[ev.Hour]++
		}
		if ev.DayOfWeek >= 0 && ev.DayOfWeek < 7 {
			snap.DayOfWeek[ev.DayOfWeek]++
		}
	}

	snap.AveragePrice = snap.TotalRevenue / float64(snap.TotalSales)
	snap.MedianPrice = median(prices)
	snap.TopProducts = topProducts(events, snap.TotalSales)
	snap.TopCategories = topCategories(events, snap.TotalSales)
	snap.Series = buildSeries(period, events, now.Location())
	snap.Insights = buildInsights(snap)

	return snap
}

func median(prices []float64) float64 {
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// topProducts groups by the exact product-name string. Sort is descending
// by count with ties kept in first-encountered order.
func topProducts(events []models.PurchaseEvent, total int) []models.TopProduct {
	index := make(map[string]int)
	var ranked []models.TopProduct

	for _, ev := range events {
		i, ok := index[ev.ProductName]
		if !ok {
			i = len(ranked)
			index[ev.ProductName] = i
			ranked = append(ranked, models.TopProduct{
				Name:     ev.ProductName,
				Category: ev.Category,
				Emoji:    ev.Emoji,
			})
		}
		ranked[i].Count++
		ranked[i].Revenue += ev.Price
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })

	if len(ranked) > maxTopProducts {
		ranked = ranked[:maxTopProducts]
	}
	for i := range ranked {
		ranked[i].Share = float64(ranked[i].Count) / float64(total)
	}
	return ranked
}

func topCategories(events []models.PurchaseEvent, total int) []models.TopCategory {
	index := make(map[string]int)
	var ranked []models.TopCategory

	for _, ev := range events {
		i, ok := index[ev.Category]
		if !ok {
			i = len(ranked)
			index[ev.Category] = i
			ranked = append(ranked, models.TopCategory{
				Name:  ev.Category,
				Color: ev.Color,
			})
		}
		ranked[i].Count++
		ranked[i].Revenue += ev.Price
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })

	for i := range ranked {
		ranked[i].Share = float64(ranked[i].Count) / float64(total)
	}
	return ranked
}

// buildSeries groups events into period-dependent time buckets. Grouping
// order is the working set's, so buckets are sorted ascending afterwards.
func buildSeries(period models.Period, events []models.PurchaseEvent, loc *time.Location) []models.SeriesBucket {
	index := make(map[string]int)
	var buckets []models.SeriesBucket

	for _, ev := range events {
		t := time.UnixMilli(ev.Timestamp).In(loc)
		key, label, start := bucketFor(period, t)

		i, ok := index[key]
		if !ok {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, models.SeriesBucket{
				Key:   key,
				Label: label,
				Start: start.UnixMilli(),
			})
		}
		buckets[i].Count++
		buckets[i].Revenue += ev.Price
	}

	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Start < buckets[j].Start })
	return buckets
}

// bucketFor maps an event time to its series bucket: hourly for today,
// daily for week (weekday label) and month ("Jan 5" label), calendar weeks
// otherwise.
func bucketFor(period models.Period, t time.Time) (key, label string, start time.Time) {
	switch period {
	case models.PeriodToday:
		y, m, d := t.Date()
		start = time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
		return t.Format("2006-01-02T15"), t.Format("15:00"), start
	case models.PeriodWeek:
		y, m, d := t.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
		return start.Format("2006-01-02"), t.Format("Mon"), start
	case models.PeriodMonth:
		y, m, d := t.Date()
		start = time.Date(y, m, d, 0, 0, 0, 0, t.Location())
		return start.Format("2006-01-02"), t.Format("Jan 2"), start
	default:
		start = weekStart(t)
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), start.Format("Jan 2"), start
	}
}

// weekStart returns local midnight of the Monday beginning t's ISO week.
func weekStart(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, t.Location())

	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// buildInsights evaluates the fixed rule set in order and keeps the first
// five that trigger.
func buildInsights(snap *models.AnalyticsSnapshot) []string {
	insights := []string{}

	if snap.TotalSales == 1 {
		insights = append(insights, "🎉 First sale recorded! The machine is open for business.")
	}
	if snap.TotalSales >= 100 {
		insights = append(insights, fmt.Sprintf("🏆 Milestone: %d sales and counting.", snap.TotalSales))
	}
	if len(snap.TopProducts) > 0 && snap.TopProducts[0].Share > 0.30 {
		top := snap.TopProducts[0]
		insights = append(insights, fmt.Sprintf("⭐ %s dominates with %.0f%% of all sales.", top.Name, top.Share*100))
	}
	if snap.AveragePrice > 5 {
		insights = append(insights, fmt.Sprintf("💰 High average purchase: $%.2f per sale.", snap.AveragePrice))
	}
	if hour, count := peakHour(snap.Hourly); count > 0 {
		insights = append(insights, fmt.Sprintf("⏰ Peak sales hour: %02d:00.", hour))
	}
	if len(snap.TopCategories) >= 2 {
		lead := snap.TopCategories[0]
		insights = append(insights, fmt.Sprintf("📊 %s leads across %d categories.", lead.Name, len(snap.TopCategories)))
	}

	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}
	return insights
}

// peakHour returns the argmax bucket of the hourly histogram. Ties resolve
// to the earliest hour.
func peakHour(hourly [24]int) (int, int) {
	best, bestCount := 0, 0
	for h, c := range hourly {
		if c > bestCount {
			best, bestCount = h, c
		}
	}
	return best, bestCount
}
