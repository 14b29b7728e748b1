// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package validation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/vendwatch/internal/models"
)

// PayloadKind is the outcome of classifying a decoded stream payload.
type PayloadKind int

const (
	// PayloadValidSale is a structured payload that passed the purchase
	// event shape checks.
	PayloadValidSale PayloadKind = iota

	// PayloadMalformed looked like a sale (carried a product-name field)
	// but failed validation. Logged and dropped at the boundary.
	PayloadMalformed

	// PayloadNonSale is any other payload (plain text, pings, unrelated
	// JSON). Forwarded to subscribers without a sale attached.
	PayloadNonSale
)

// MaxProductNameLen bounds product names accepted from the stream.
const MaxProductNameLen = 100

// productNameRe is the safe character set for product names.
var productNameRe = regexp.MustCompile(`^[A-Za-z0-9 .,'&()\-]+$`)

// ValidProductName reports whether name is non-empty, within bounds, and
// restricted to the safe character set.
func ValidProductName(name string) bool {
	if name == "" || len(name) > MaxProductNameLen {
		return false
	}
	return productNameRe.MatchString(name)
}

// ClassifySale inspects a JSON-decoded payload and decides whether it is a
// valid sale, a malformed sale attempt, or not a sale at all. The returned
// sale is non-nil only for PayloadValidSale.
//
// Shape rules:
//   - payload must be a JSON object carrying a "productName" field to be
//     considered a sale candidate at all
//   - productName: non-empty string in the safe character set
//   - price: non-negative number, or a string that parses to one after
//     stripping currency formatting; unparseable strings default to 0
//   - timestamp: positive epoch milliseconds; absent or invalid values
//     yield 0 and the engine substitutes the ingestion time
func ClassifySale(decoded interface{}) (PayloadKind, *models.ValidatedSale, string) {
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return PayloadNonSale, nil, ""
	}
	rawName, ok := obj["productName"]
	if !ok {
		return PayloadNonSale, nil, ""
	}

	name, ok := rawName.(string)
	if !ok || !ValidProductName(strings.TrimSpace(name)) {
		return PayloadMalformed, nil, "invalid product name"
	}
	name = strings.TrimSpace(name)

	price, ok := ParsePrice(obj["price"])
	if !ok {
		return PayloadMalformed, nil, "negative price"
	}

	return PayloadValidSale, &models.ValidatedSale{
		ProductName: name,
		Price:       price,
		Timestamp:   parseTimestamp(obj["timestamp"]),
	}, ""
}

// ParsePrice converts a price value of any wire-plausible type to a
// non-negative float. Unparseable input defaults to 0 (accepted); an
// explicitly negative number is rejected with ok=false.
func ParsePrice(v interface{}) (float64, bool) {
	switch p := v.(type) {
	case nil:
		return 0, true
	case float64:
		if p < 0 {
			return 0, false
		}
		return p, true
	case json.Number:
		f, err := p.Float64()
		if err != nil {
			return 0, true
		}
		if f < 0 {
			return 0, false
		}
		return f, true
	case string:
		f, err := strconv.ParseFloat(cleanCurrency(p), 64)
		if err != nil {
			return 0, true
		}
		if f < 0 {
			return 0, false
		}
		return f, true
	default:
		return 0, true
	}
}

// cleanCurrency strips currency symbols, thousands separators, and
// whitespace so values like "$1.50" or "1,234.50" parse as floats.
func cleanCurrency(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseTimestamp extracts epoch milliseconds, or 0 when absent or invalid.
func parseTimestamp(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return int64(t)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil && n > 0 {
			return n
		}
	}
	return 0
}
