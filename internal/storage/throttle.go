package storage

import (
	"context"
	"fmt"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/ratelimit"
)

// Throttled bounds how fast reads reach the wrapped store. A read waits for a
// token and gives up when its context ends first.
type Throttled struct {
	store   anomaly.Store
	limiter *ratelimit.Limiter
}

// NewThrottled wraps store with limiter
func NewThrottled(store anomaly.Store, limiter *ratelimit.Limiter) *Throttled {
	return &Throttled{store: store, limiter: limiter}
}

func (t *Throttled) wait(ctx context.Context, operation string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait to %s: %w", operation, err)
	}
	return nil
}

func (t *Throttled) GetAlert(ctx context.Context, id string) (*anomaly.Alert, error) {
	if err := t.wait(ctx, "get alert"); err != nil {
		return nil, err
	}
	return t.store.GetAlert(ctx, id)
}

func (t *Throttled) ListAlerts(ctx context.Context, filter anomaly.AlertFilter) ([]anomaly.Alert, error) {
	if err := t.wait(ctx, "list alerts"); err != nil {
		return nil, err
	}
	return t.store.ListAlerts(ctx, filter)
}

func (t *Throttled) ListProducts(ctx context.Context, filter anomaly.ProductFilter) ([]anomaly.Product, error) {
	if err := t.wait(ctx, "list products"); err != nil {
		return nil, err
	}
	return t.store.ListProducts(ctx, filter)
}

func (t *Throttled) ListShipments(ctx context.Context, filter anomaly.ShipmentFilter) ([]anomaly.Shipment, error) {
	if err := t.wait(ctx, "list shipments"); err != nil {
		return nil, err
	}
	return t.store.ListShipments(ctx, filter)
}
