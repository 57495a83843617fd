package anomaly

import (
	"time"
)

// Type identifies the kind of detected anomaly
type Type string

const (
	TypePriceSpike   Type = "price_spike"
	TypeTariffChange Type = "tariff_change"
	TypeFreightSurge Type = "freight_surge"
	TypeFXVolatility Type = "fx_volatility"
)

// Severity is the detector-assigned severity of an anomaly
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Ordinal maps severity to 1 (low) .. 4 (critical). Unknown severities count as low.
func (s Severity) Ordinal() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Status is the externally managed lifecycle state of an alert
type Status string

const (
	StatusNew      Status = "new"
	StatusViewed   Status = "viewed"
	StatusResolved Status = "resolved"
)

// Anomaly is a detected trade anomaly
type Anomaly struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	Severity   Severity  `json:"severity"`
	ProductID  string    `json:"product_id,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
	Details    Details   `json:"details,omitempty"`
}

// Alert wraps an anomaly raised to users. Immutable once created apart from Status.
type Alert struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Anomaly   *Anomaly  `json:"anomaly"`
}

// Timestamp returns the moment the alert's anomaly happened, falling back to the
// alert creation time when the detector did not record one.
func (a *Alert) Timestamp() time.Time {
	if a.Anomaly != nil && !a.Anomaly.DetectedAt.IsZero() {
		return a.Anomaly.DetectedAt
	}
	return a.CreatedAt
}

// Product is a traded product
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	HSCode   string `json:"hs_code,omitempty"`
}

// Shipment is one customs-declared shipment of a product
type Shipment struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	UnitPrice float64   `json:"unit_price"`
	Quantity  float64   `json:"quantity"`
	ShippedAt time.Time `json:"shipped_at"`
}

// DaysBetween returns the absolute distance between two instants in fractional days
func DaysBetween(a, b time.Time) float64 {
	d := a.Sub(b).Hours() / 24
	if d < 0 {
		return -d
	}
	return d
}
