// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package models

import "time"

// StockLevel classifies a record after a stock mutation.
type StockLevel string

const (
	StockNormal StockLevel = "normal"
	StockLow    StockLevel = "low"    // CurrentStock <= MinStock
	StockOut    StockLevel = "out"    // CurrentStock <= 0
)

// InventoryRecord tracks stock for one product. CurrentStock never goes
// negative; decrements that would cross zero clamp to zero.
type InventoryRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	CurrentStock int `json:"currentStock"`
	MinStock     int `json:"minStock"` // reorder threshold
	MaxStock     int `json:"maxStock"`

	Price    float64 `json:"price"`
	Category string  `json:"category"`
	Supplier string  `json:"supplier,omitempty"`

	LastRestocked time.Time `json:"lastRestocked,omitempty"`
	LastUpdated   time.Time `json:"lastUpdated"`

	IsActive   bool `json:"isActive"`
	TotalSales int  `json:"totalSales"`
}

// Level classifies the record's current stock state. Out takes precedence
// over low when both thresholds are crossed.
func (r *InventoryRecord) Level() StockLevel {
	switch {
	case r.CurrentStock <= 0:
		return StockOut
	case r.CurrentStock <= r.MinStock:
		return StockLow
	default:
		return StockNormal
	}
}

// StockAlert is emitted when a record crosses a stock threshold, rate
// limited to one alert per record per cooldown window.
type StockAlert struct {
	RecordID     string     `json:"recordId"`
	Name         string     `json:"name"`
	Level        StockLevel `json:"level"`
	CurrentStock int        `json:"currentStock"`
	MinStock     int        `json:"minStock"`
	At           time.Time  `json:"at"`
}

// InventoryStats summarizes the tracked record set.
type InventoryStats struct {
	TotalProducts  int     `json:"totalProducts"`
	ActiveProducts int     `json:"activeProducts"`
	TotalStock     int     `json:"totalStock"`
	TotalValue     float64 `json:"totalValue"` // sum of stock * price
	LowStock       int     `json:"lowStock"`
	OutOfStock     int     `json:"outOfStock"`
	TotalSales     int     `json:"totalSales"`
}
