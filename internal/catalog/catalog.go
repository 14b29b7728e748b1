// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package catalog maps product names to display metadata (category, emoji,
// chart color) used to enrich purchase events at ingestion. Matching is
// case-insensitive substring matching where the longest (most specific)
// catalog key wins; names that match nothing fall back to a default entry.
package catalog

import (
	"sort"
	"strings"
)

// Entry is the metadata attached to an event at enrichment time.
type Entry struct {
	Category string `json:"category"`
	Emoji    string `json:"emoji"`
	Color    string `json:"color"`
}

// Catalog resolves product names to entries. Immutable after construction,
// safe for concurrent use.
type Catalog struct {
	entries map[string]Entry
	// keys sorted longest-first so the most specific pattern wins;
	// alphabetical within a length for deterministic ties.
	keys []string
	def  Entry
}

// DefaultEntry is used for products that match no catalog key.
var DefaultEntry = Entry{Category: "other", Emoji: "📦", Color: "#9e9e9e"}

// defaultEntries is the built-in vending machine product table.
var defaultEntries = map[string]Entry{
	"diet cola":   {Category: "beverages", Emoji: "🥤", Color: "#4fc3f7"},
	"cola":        {Category: "beverages", Emoji: "🥤", Color: "#4fc3f7"},
	"soda":        {Category: "beverages", Emoji: "🥤", Color: "#4fc3f7"},
	"lemonade":    {Category: "beverages", Emoji: "🍋", Color: "#fff176"},
	"water":       {Category: "beverages", Emoji: "💧", Color: "#81d4fa"},
	"juice":       {Category: "beverages", Emoji: "🧃", Color: "#ffb74d"},
	"iced tea":    {Category: "beverages", Emoji: "🧋", Color: "#a1887f"},
	"tea":         {Category: "beverages", Emoji: "🍵", Color: "#aed581"},
	"coffee":      {Category: "beverages", Emoji: "☕", Color: "#8d6e63"},
	"energy":      {Category: "beverages", Emoji: "⚡", Color: "#ffd54f"},
	"chips":       {Category: "snacks", Emoji: "🍟", Color: "#ffb300"},
	"crisps":      {Category: "snacks", Emoji: "🍟", Color: "#ffb300"},
	"pretzel":     {Category: "snacks", Emoji: "🥨", Color: "#bf8040"},
	"popcorn":     {Category: "snacks", Emoji: "🍿", Color: "#fff59d"},
	"crackers":    {Category: "snacks", Emoji: "🧇", Color: "#d7ccc8"},
	"nuts":        {Category: "snacks", Emoji: "🥜", Color: "#a1887f"},
	"trail mix":   {Category: "snacks", Emoji: "🥜", Color: "#a1887f"},
	"granola":     {Category: "snacks", Emoji: "🌾", Color: "#c0a060"},
	"chocolate":   {Category: "sweets", Emoji: "🍫", Color: "#795548"},
	"candy":       {Category: "sweets", Emoji: "🍬", Color: "#f06292"},
	"gum":         {Category: "sweets", Emoji: "🫧", Color: "#ce93d8"},
	"cookie":      {Category: "sweets", Emoji: "🍪", Color: "#bcaaa4"},
	"gummy":       {Category: "sweets", Emoji: "🐻", Color: "#ef5350"},
	"mints":       {Category: "sweets", Emoji: "🌿", Color: "#80cbc4"},
	"sandwich":    {Category: "food", Emoji: "🥪", Color: "#ffcc80"},
	"wrap":        {Category: "food", Emoji: "🌯", Color: "#dce775"},
	"salad":       {Category: "food", Emoji: "🥗", Color: "#9ccc65"},
	"noodles":     {Category: "food", Emoji: "🍜", Color: "#ffab91"},
	"soup":        {Category: "food", Emoji: "🍲", Color: "#ff8a65"},
	"protein bar": {Category: "food", Emoji: "🍫", Color: "#90a4ae"},
}

// Default returns a catalog populated with the built-in product table.
func Default() *Catalog {
	return New(defaultEntries, DefaultEntry)
}

// New builds a catalog from the given table. Keys are matched
// case-insensitively as substrings of the product name.
func New(entries map[string]Entry, def Entry) *Catalog {
	c := &Catalog{
		entries: make(map[string]Entry, len(entries)),
		keys:    make([]string, 0, len(entries)),
		def:     def,
	}
	for k, v := range entries {
		lk := strings.ToLower(k)
		c.entries[lk] = v
		c.keys = append(c.keys, lk)
	}
	sort.Slice(c.keys, func(i, j int) bool {
		if len(c.keys[i]) != len(c.keys[j]) {
			return len(c.keys[i]) > len(c.keys[j])
		}
		return c.keys[i] < c.keys[j]
	})
	return c
}

// Lookup resolves a product name to its catalog entry. The longest key
// contained in the name wins; unmatched names get the default entry.
func (c *Catalog) Lookup(productName string) Entry {
	name := strings.ToLower(productName)
	for _, k := range c.keys {
		if strings.Contains(name, k) {
			return c.entries[k]
		}
	}
	return c.def
}
