// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package models defines the shared domain types for the vending analytics
// core: purchase events, analytics snapshots, inventory records, and the
// wire/API envelopes exchanged with the presentation layer.
package models

import (
	"time"
)

// PurchaseEvent is the fundamental unit of the system: one sale observed on
// the event stream. The enriched fields (Category through Year) are derived
// exactly once at ingestion and never recomputed afterwards.
type PurchaseEvent struct {
	// ID uniquely identifies the event. Generated at ingestion if the
	// source did not supply one.
	ID string `json:"id"`

	// ProductName is the product sold, verbatim as validated at the
	// stream boundary. Grouping uses this string exactly (no case folding).
	ProductName string `json:"productName"`

	// Price is the sale price in currency units. Never negative; defaults
	// to 0 when the source value could not be parsed.
	Price float64 `json:"price"`

	// Timestamp is the sale time in epoch milliseconds. Defaults to the
	// ingestion time when absent or invalid.
	Timestamp int64 `json:"timestamp"`

	// Enriched at ingestion from the product catalog.
	Category string `json:"category"`
	Emoji    string `json:"emoji"`
	Color    string `json:"color"`

	// Enriched at ingestion from Timestamp in the local time zone.
	Hour       int `json:"hour"`       // 0-23
	DayOfWeek  int `json:"dayOfWeek"`  // 0=Sunday .. 6=Saturday
	WeekOfYear int `json:"weekOfYear"` // ISO week number
	Month      int `json:"month"`      // 1-12
	Year       int `json:"year"`
}

// Time returns the event timestamp as a time.Time in the local zone.
func (e *PurchaseEvent) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// ValidatedSale is the outcome of classifying an inbound stream payload as a
// well-formed sale. It carries the normalized fields before enrichment.
type ValidatedSale struct {
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`

	// Timestamp is epoch milliseconds, or 0 when the payload carried no
	// usable timestamp (the engine substitutes the ingestion time).
	Timestamp int64 `json:"timestamp,omitempty"`
}

// StreamMessage is delivered to stream subscribers for every inbound frame
// that survived the boundary checks. Sale is non-nil only for frames that
// classified as a valid sale.
type StreamMessage struct {
	// Decoded is the JSON-decoded payload, or the raw text when the frame
	// was not valid JSON.
	Decoded interface{} `json:"decoded"`

	// Raw is the frame exactly as received.
	Raw []byte `json:"raw"`

	// ReceivedAt is the receipt timestamp.
	ReceivedAt time.Time `json:"receivedAt"`

	// Sale is the validated sale carried by the frame, if any.
	Sale *ValidatedSale `json:"sale,omitempty"`
}
