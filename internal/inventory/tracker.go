// Vendwatch - Real-Time Vending Machine Sales Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vendwatch

// Package inventory maintains per-product stock levels reactively as sales
// are observed, and raises rate-limited threshold alerts.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/vendwatch/internal/bus"
	"github.com/tomtom215/vendwatch/internal/logging"
	"github.com/tomtom215/vendwatch/internal/metrics"
	"github.com/tomtom215/vendwatch/internal/models"
	"github.com/tomtom215/vendwatch/internal/validation"
)

// DefaultAlertCooldown is the per-record alert rate limit window.
const DefaultAlertCooldown = 30 * time.Minute

// DefaultMinStock is the reorder threshold applied when neither the config
// nor the product input supplies one.
const DefaultMinStock = 5

// ErrNotFound is returned for operations on an unknown record ID.
var ErrNotFound = fmt.Errorf("inventory record not found")

// Config controls tracker behavior.
type Config struct {
	// AutoTrack creates a zero-stock record for sales of unknown products.
	AutoTrack bool

	// AlertCooldown is the minimum interval between alerts for one record.
	// Default 30 minutes.
	AlertCooldown time.Duration

	// DefaultMinStock seeds the reorder threshold for auto-created records.
	DefaultMinStock int
}

// ProductInput is the payload for manual add and edit operations.
type ProductInput struct {
	Name     string  `json:"name" validate:"required,productname"`
	Stock    int     `json:"stock" validate:"gte=0"`
	MinStock int     `json:"minStock" validate:"gte=0"`
	MaxStock int     `json:"maxStock" validate:"gte=0"`
	Price    float64 `json:"price" validate:"gte=0"`
	Category string  `json:"category"`
	Supplier string  `json:"supplier"`
}

// InventoryStore is the persistence surface the tracker needs.
type InventoryStore interface {
	SaveInventory(ctx context.Context, records []models.InventoryRecord) error
	LoadInventory(ctx context.Context) ([]models.InventoryRecord, error)
}

// Tracker owns the record set. All mutations persist the full set and run
// alert classification afterwards.
type Tracker struct {
	cfg   Config
	store InventoryStore
	bus   *bus.Bus

	mu      sync.RWMutex
	records map[string]*models.InventoryRecord
	order   []string // insertion order, for stable listings

	// lastAlert tracks the most recent alert per record for the cooldown.
	lastAlert map[string]time.Time

	now func() time.Time
}

// NewTracker creates a tracker over the given store. eventBus may be nil.
func NewTracker(cfg Config, invStore InventoryStore, eventBus *bus.Bus) *Tracker {
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = DefaultAlertCooldown
	}
	if cfg.DefaultMinStock <= 0 {
		cfg.DefaultMinStock = DefaultMinStock
	}

	return &Tracker{
		cfg:       cfg,
		store:     invStore,
		bus:       eventBus,
		records:   make(map[string]*models.InventoryRecord),
		lastAlert: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Load restores the record set from the store.
func (t *Tracker) Load(ctx context.Context) error {
	records, err := t.store.LoadInventory(ctx)
	if err != nil {
		return fmt.Errorf("load inventory: %w", err)
	}

	t.mu.Lock()
	t.records = make(map[string]*models.InventoryRecord, len(records))
	t.order = t.order[:0]
	for i := range records {
		r := records[i]
		t.records[r.ID] = &r
		t.order = append(t.order, r.ID)
	}
	active := t.activeCountLocked()
	t.mu.Unlock()

	metrics.InventoryProducts.Set(float64(active))
	logging.Info().Int("records", len(records)).Msg("inventory loaded")
	return nil
}

// HandleSale observes one purchase event: fuzzy-match the product, decrement
// stock, and alert on threshold crossings. Unknown products are auto-created
// with zero stock when auto-tracking is on.
func (t *Tracker) HandleSale(ctx context.Context, event models.PurchaseEvent) {
	t.mu.Lock()

	record := t.matchLocked(event.ProductName)
	if record == nil {
		if !t.cfg.AutoTrack {
			t.mu.Unlock()
			return
		}
		record = &models.InventoryRecord{
			ID:       uuid.NewString(),
			Name:     event.ProductName,
			MinStock: t.cfg.DefaultMinStock,
			Price:    event.Price,
			Category: event.Category,
			IsActive: true,
		}
		t.records[record.ID] = record
		t.order = append(t.order, record.ID)
		logging.Info().Str("product", record.Name).Msg("auto-tracking new product")
	}

	if record.CurrentStock > 0 {
		record.CurrentStock--
	}
	record.TotalSales++
	record.LastUpdated = t.now()

	snapshot := *record
	t.mu.Unlock()

	t.persist(ctx)
	t.alert(snapshot)
}

// matchLocked finds a record for a sold product: exact case-insensitive
// name first, then substring containment in either direction. Caller holds
// the write lock.
func (t *Tracker) matchLocked(productName string) *models.InventoryRecord {
	needle := strings.ToLower(strings.TrimSpace(productName))
	if needle == "" {
		return nil
	}

	for _, id := range t.order {
		r := t.records[id]
		if r.IsActive && strings.ToLower(r.Name) == needle {
			return r
		}
	}
	for _, id := range t.order {
		r := t.records[id]
		if !r.IsActive {
			continue
		}
		name := strings.ToLower(r.Name)
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			return r
		}
	}
	return nil
}

// AddProduct validates and inserts a new record.
func (t *Tracker) AddProduct(ctx context.Context, input ProductInput) (*models.InventoryRecord, error) {
	if err := validation.ValidateStruct(input); err != nil {
		return nil, err
	}

	// An omitted reorder threshold falls back to the configured default;
	// a record with MinStock 0 would never classify low before it is out.
	minStock := input.MinStock
	if minStock == 0 {
		minStock = t.cfg.DefaultMinStock
	}

	now := t.now()
	record := &models.InventoryRecord{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(input.Name),
		CurrentStock: input.Stock,
		MinStock:     minStock,
		MaxStock:     input.MaxStock,
		Price:        input.Price,
		Category:     input.Category,
		Supplier:     input.Supplier,
		LastUpdated:  now,
		IsActive:     true,
	}
	if input.Stock > 0 {
		record.LastRestocked = now
	}

	t.mu.Lock()
	t.records[record.ID] = record
	t.order = append(t.order, record.ID)
	snapshot := *record
	active := t.activeCountLocked()
	t.mu.Unlock()

	metrics.InventoryProducts.Set(float64(active))
	t.persist(ctx)
	t.alert(snapshot)
	return &snapshot, nil
}

// UpdateProduct validates and applies an edit to an existing record. Stock
// is not part of an edit; use SetStock.
func (t *Tracker) UpdateProduct(ctx context.Context, id string, input ProductInput) (*models.InventoryRecord, error) {
	if err := validation.ValidateStruct(input); err != nil {
		return nil, err
	}

	t.mu.Lock()
	record, ok := t.records[id]
	if !ok {
		t.mu.Unlock()
		return nil, ErrNotFound
	}
	record.Name = strings.TrimSpace(input.Name)
	record.MinStock = input.MinStock
	record.MaxStock = input.MaxStock
	record.Price = input.Price
	record.Category = input.Category
	record.Supplier = input.Supplier
	record.LastUpdated = t.now()
	snapshot := *record
	t.mu.Unlock()

	t.persist(ctx)
	return &snapshot, nil
}

// SetStock sets a record's stock level. Negative values clamp to zero. A
// restock reason combined with an increase touches LastRestocked.
func (t *Tracker) SetStock(ctx context.Context, id string, value int, reason string) (*models.InventoryRecord, error) {
	if value < 0 {
		value = 0
	}

	t.mu.Lock()
	record, ok := t.records[id]
	if !ok {
		t.mu.Unlock()
		return nil, ErrNotFound
	}

	previous := record.CurrentStock
	record.CurrentStock = value
	record.LastUpdated = t.now()
	if isRestockReason(reason) && value > previous {
		record.LastRestocked = record.LastUpdated
	}
	snapshot := *record
	t.mu.Unlock()

	t.persist(ctx)
	t.alert(snapshot)
	return &snapshot, nil
}

func isRestockReason(reason string) bool {
	return strings.Contains(strings.ToLower(reason), "restock")
}

// RemoveProduct deactivates a record, or deletes it physically when hard is
// set.
func (t *Tracker) RemoveProduct(ctx context.Context, id string, hard bool) error {
	t.mu.Lock()
	record, ok := t.records[id]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}

	if hard {
		delete(t.records, id)
		for i, oid := range t.order {
			if oid == id {
				t.order = append(t.order[:i], t.order[i+1:]...)
				break
			}
		}
		delete(t.lastAlert, id)
	} else {
		record.IsActive = false
		record.LastUpdated = t.now()
	}
	active := t.activeCountLocked()
	t.mu.Unlock()

	metrics.InventoryProducts.Set(float64(active))
	t.persist(ctx)
	return nil
}

// Get returns a copy of one record.
func (t *Tracker) Get(id string) (*models.InventoryRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *record
	return &snapshot, nil
}

// List returns all records in insertion order. includeInactive widens the
// listing to soft-removed records.
func (t *Tracker) List(includeInactive bool) []models.InventoryRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]models.InventoryRecord, 0, len(t.order))
	for _, id := range t.order {
		r := t.records[id]
		if !includeInactive && !r.IsActive {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// Search returns active records whose name contains q, case-insensitive,
// sorted by name.
func (t *Tracker) Search(q string) []models.InventoryRecord {
	needle := strings.ToLower(strings.TrimSpace(q))

	t.mu.RLock()
	out := make([]models.InventoryRecord, 0)
	for _, id := range t.order {
		r := t.records[id]
		if r.IsActive && strings.Contains(strings.ToLower(r.Name), needle) {
			out = append(out, *r)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stats summarizes the active record set.
func (t *Tracker) Stats() models.InventoryStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var stats models.InventoryStats
	stats.TotalProducts = len(t.records)
	for _, id := range t.order {
		r := t.records[id]
		if !r.IsActive {
			continue
		}
		stats.ActiveProducts++
		stats.TotalStock += r.CurrentStock
		stats.TotalValue += float64(r.CurrentStock) * r.Price
		stats.TotalSales += r.TotalSales
		switch r.Level() {
		case models.StockOut:
			stats.OutOfStock++
		case models.StockLow:
			stats.LowStock++
		}
	}
	return stats
}

func (t *Tracker) activeCountLocked() int {
	n := 0
	for _, r := range t.records {
		if r.IsActive {
			n++
		}
	}
	return n
}

// persist writes the full record set. Failures are logged; the in-memory
// state stays authoritative.
func (t *Tracker) persist(ctx context.Context) {
	t.mu.RLock()
	records := make([]models.InventoryRecord, 0, len(t.order))
	for _, id := range t.order {
		records = append(records, *t.records[id])
	}
	t.mu.RUnlock()

	if err := t.store.SaveInventory(ctx, records); err != nil {
		logging.Warn().Err(err).Msg("inventory persist failed")
	}
}

// alert classifies the record and emits at most one alert per record per
// cooldown window. Out takes precedence over low.
func (t *Tracker) alert(record models.InventoryRecord) {
	level := record.Level()
	if level == models.StockNormal {
		return
	}

	now := t.now()
	t.mu.Lock()
	if last, ok := t.lastAlert[record.ID]; ok && now.Sub(last) < t.cfg.AlertCooldown {
		t.mu.Unlock()
		return
	}
	t.lastAlert[record.ID] = now
	t.mu.Unlock()

	alert := models.StockAlert{
		RecordID:     record.ID,
		Name:         record.Name,
		Level:        level,
		CurrentStock: record.CurrentStock,
		MinStock:     record.MinStock,
		At:           now,
	}

	metrics.RecordInventoryAlert(string(level))
	logging.Warn().
		Str("product", alert.Name).
		Str("level", string(level)).
		Int("stock", alert.CurrentStock).
		Msg("stock alert")

	if t.bus != nil {
		if err := t.bus.PublishAlert(alert); err != nil {
			logging.Warn().Err(err).Str("product", alert.Name).Msg("alert publish failed")
		}
	}
}
