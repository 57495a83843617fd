package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/liamashdown/tradeintel/internal/anomaly"
)

// Memory is an in-process Store used by tests and local runs without MySQL.
// Err, when set, is returned from every read to simulate store failures. Reads
// fail once their context is done, as they would against MySQL.
type Memory struct {
	mu        sync.RWMutex
	alerts    map[string]anomaly.Alert
	products  map[string]anomaly.Product
	shipments []anomaly.Shipment
	Err       error
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		alerts:   make(map[string]anomaly.Alert),
		products: make(map[string]anomaly.Product),
	}
}

// AddAlerts inserts or replaces alerts by id
func (m *Memory) AddAlerts(alerts ...anomaly.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range alerts {
		m.alerts[a.ID] = a
	}
}

// AddProducts inserts or replaces products by id
func (m *Memory) AddProducts(products ...anomaly.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		m.products[p.ID] = p
	}
}

// AddShipments appends shipments
func (m *Memory) AddShipments(shipments ...anomaly.Shipment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipments = append(m.shipments, shipments...)
}

func (m *Memory) err(ctx context.Context) error {
	if m.Err != nil {
		return m.Err
	}
	return ctx.Err()
}

func (m *Memory) GetAlert(ctx context.Context, id string) (*anomaly.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err(ctx); err != nil {
		return nil, err
	}
	a, ok := m.alerts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Memory) ListAlerts(ctx context.Context, filter anomaly.AlertFilter) ([]anomaly.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err(ctx); err != nil {
		return nil, err
	}

	alerts := make([]anomaly.Alert, 0, len(m.alerts))
	for _, a := range m.alerts {
		if filter.ExcludeID != "" && a.ID == filter.ExcludeID {
			continue
		}
		if !filter.Since.IsZero() && a.CreatedAt.Before(filter.Since) {
			continue
		}
		if filter.ExcludeResolved && a.Status == anomaly.StatusResolved {
			continue
		}
		alerts = append(alerts, a)
	}

	// Newest first, matching the SQL store
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	if filter.Limit > 0 && len(alerts) > filter.Limit {
		alerts = alerts[:filter.Limit]
	}
	return alerts, nil
}

func (m *Memory) ListProducts(ctx context.Context, filter anomaly.ProductFilter) ([]anomaly.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err(ctx); err != nil {
		return nil, err
	}

	var ids map[string]bool
	if len(filter.IDs) > 0 {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}

	products := make([]anomaly.Product, 0, len(m.products))
	for _, p := range m.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if ids != nil && !ids[p.ID] {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

func (m *Memory) ListShipments(ctx context.Context, filter anomaly.ShipmentFilter) ([]anomaly.Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.err(ctx); err != nil {
		return nil, err
	}

	shipments := make([]anomaly.Shipment, 0, len(m.shipments))
	for _, s := range m.shipments {
		if filter.ProductID != "" && s.ProductID != filter.ProductID {
			continue
		}
		if !filter.From.IsZero() && s.ShippedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && s.ShippedAt.After(filter.To) {
			continue
		}
		shipments = append(shipments, s)
	}
	sort.SliceStable(shipments, func(i, j int) bool { return shipments[i].ShippedAt.Before(shipments[j].ShippedAt) })
	if filter.Limit > 0 && len(shipments) > filter.Limit {
		shipments = shipments[len(shipments)-filter.Limit:]
	}
	return shipments, nil
}
