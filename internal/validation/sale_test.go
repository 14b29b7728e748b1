// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

package validation

import (
	"testing"
)

func TestClassifySale(t *testing.T) {
	tests := []struct {
		name      string
		payload   interface{}
		wantKind  PayloadKind
		wantPrice float64
		wantTS    int64
	}{
		{
			name:      "valid numeric price",
			payload:   map[string]interface{}{"productName": "Cola", "price": 1.5},
			wantKind:  PayloadValidSale,
			wantPrice: 1.5,
		},
		{
			name:      "currency formatted string price",
			payload:   map[string]interface{}{"productName": "Cola", "price": "$1.50"},
			wantKind:  PayloadValidSale,
			wantPrice: 1.5,
		},
		{
			name:      "unparseable price defaults to zero",
			payload:   map[string]interface{}{"productName": "Cola", "price": "free"},
			wantKind:  PayloadValidSale,
			wantPrice: 0,
		},
		{
			name:      "absent price defaults to zero",
			payload:   map[string]interface{}{"productName": "Cola"},
			wantKind:  PayloadValidSale,
			wantPrice: 0,
		},
		{
			name:     "negative price rejected",
			payload:  map[string]interface{}{"productName": "Cola", "price": -1.0},
			wantKind: PayloadMalformed,
		},
		{
			name:     "empty product name rejected",
			payload:  map[string]interface{}{"productName": "", "price": 1.0},
			wantKind: PayloadMalformed,
		},
		{
			name:     "unsafe product name rejected",
			payload:  map[string]interface{}{"productName": "<script>", "price": 1.0},
			wantKind: PayloadMalformed,
		},
		{
			name:     "non-string product name rejected",
			payload:  map[string]interface{}{"productName": 42.0, "price": 1.0},
			wantKind: PayloadMalformed,
		},
		{
			name:     "object without product name is not a sale",
			payload:  map[string]interface{}{"type": "ping"},
			wantKind: PayloadNonSale,
		},
		{
			name:     "non-object is not a sale",
			payload:  "hello",
			wantKind: PayloadNonSale,
		},
		{
			name:      "valid timestamp carried through",
			payload:   map[string]interface{}{"productName": "Cola", "price": 2.0, "timestamp": 1700000000000.0},
			wantKind:  PayloadValidSale,
			wantPrice: 2.0,
			wantTS:    1700000000000,
		},
		{
			name:      "invalid timestamp treated as absent",
			payload:   map[string]interface{}{"productName": "Cola", "price": 2.0, "timestamp": -5.0},
			wantKind:  PayloadValidSale,
			wantPrice: 2.0,
			wantTS:    0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, sale, _ := ClassifySale(tt.payload)
			if kind != tt.wantKind {
				t.Fatalf("kind = %v, want %v", kind, tt.wantKind)
			}
			if kind != PayloadValidSale {
				if sale != nil {
					t.Fatalf("sale should be nil for kind %v", kind)
				}
				return
			}
			if sale == nil {
				t.Fatal("sale is nil for valid payload")
			}
			if sale.Price != tt.wantPrice {
				t.Errorf("price = %v, want %v", sale.Price, tt.wantPrice)
			}
			if sale.Timestamp != tt.wantTS {
				t.Errorf("timestamp = %v, want %v", sale.Timestamp, tt.wantTS)
			}
		})
	}
}

func TestValidProductName(t *testing.T) {
	valid := []string{"Cola", "Trail Mix", "O'Brien's Crisps", "Choc-Chip Cookie (XL)", "A & W Root Beer"}
	for _, name := range valid {
		if !ValidProductName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}

	invalid := []string{"", "  <img>", "名前", "a\x00b", string(make([]byte, MaxProductNameLen+1))}
	for _, name := range invalid {
		if ValidProductName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}

func TestParsePriceCurrencyFormats(t *testing.T) {
	tests := []struct {
		in   interface{}
		want float64
		ok   bool
	}{
		{"$1.50", 1.5, true},
		{"1,234.50", 1234.5, true},
		{" 2.00 ", 2.0, true},
		{"-3.50", 0, false},
		{-2.0, 0, false},
		{3.25, 3.25, true},
		{nil, 0, true},
		{"abc", 0, true},
		{true, 0, true},
	}
	for _, tt := range tests {
		got, ok := ParsePrice(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParsePrice(%v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
