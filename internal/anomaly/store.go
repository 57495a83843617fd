package anomaly

import (
	"context"
	"time"
)

// AlertFilter bounds an alert listing
type AlertFilter struct {
	ExcludeID       string
	Since           time.Time
	Limit           int
	ExcludeResolved bool
}

// ProductFilter selects products by category and/or ids. Empty fields match everything.
type ProductFilter struct {
	Category string
	IDs      []string
}

// ShipmentFilter selects shipments in a date range, optionally for one product.
// When Limit cuts the range short the newest shipments are kept.
type ShipmentFilter struct {
	ProductID string
	From      time.Time
	To        time.Time
	Limit     int
}

// Store is the read-only view of the alert/product/shipment store the analyzers depend on.
// GetAlert returns nil, nil when the alert does not exist.
type Store interface {
	GetAlert(ctx context.Context, id string) (*Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]Alert, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	ListShipments(ctx context.Context, filter ShipmentFilter) ([]Shipment, error)
}
