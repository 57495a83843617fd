package storage

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/liamashdown/tradeintel/internal/anomaly"
)

// AlertRecord is an alert raised for a detected anomaly
type AlertRecord struct {
	ID        string         `gorm:"primaryKey;size:64"`
	AnomalyID string         `gorm:"size:64;not null;uniqueIndex"`
	Status    string         `gorm:"size:16;not null;default:new;index"`
	CreatedAt time.Time      `gorm:"not null;index"`
	Anomaly   *AnomalyRecord `gorm:"foreignKey:AnomalyID;references:ID"`
}

func (AlertRecord) TableName() string {
	return "alerts"
}

// AnomalyRecord is a detector output. Details holds the type-specific JSON bag.
type AnomalyRecord struct {
	ID         string         `gorm:"primaryKey;size:64"`
	Type       string         `gorm:"size:32;not null;index"`
	Severity   string         `gorm:"size:16;not null"`
	ProductID  *string        `gorm:"size:64;index"`
	DetectedAt time.Time      `gorm:"not null;index"`
	Details    datatypes.JSON `gorm:"type:json"`
}

func (AnomalyRecord) TableName() string {
	return "anomalies"
}

// ProductRecord is a traded product
type ProductRecord struct {
	ID       string `gorm:"primaryKey;size:64"`
	Name     string `gorm:"size:255;not null"`
	Category string `gorm:"size:128;index"`
	HSCode   string `gorm:"size:16"`
}

func (ProductRecord) TableName() string {
	return "products"
}

// ShipmentRecord is one declared shipment
type ShipmentRecord struct {
	ID           string    `gorm:"primaryKey;size:64"`
	ProductID    string    `gorm:"size:64;not null;index"`
	UnitPrice    float64   `gorm:"type:decimal(20,6);not null"`
	Quantity     float64   `gorm:"type:decimal(20,4);not null"`
	ShipmentDate time.Time `gorm:"not null;index"`
}

func (ShipmentRecord) TableName() string {
	return "shipments"
}

// BeforeCreate hook for timestamps
func (a *AlertRecord) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.Status == "" {
		a.Status = string(anomaly.StatusNew)
	}
	return nil
}

func (a *AnomalyRecord) BeforeCreate(tx *gorm.DB) error {
	if a.DetectedAt.IsZero() {
		a.DetectedAt = time.Now().UTC()
	}
	return nil
}

// toAlert converts a stored alert (with its preloaded anomaly) to the domain type
func (a *AlertRecord) toAlert() (*anomaly.Alert, error) {
	alert := &anomaly.Alert{
		ID:        a.ID,
		Status:    anomaly.Status(a.Status),
		CreatedAt: a.CreatedAt,
	}
	if a.Anomaly == nil {
		return alert, nil
	}

	an, err := a.Anomaly.toAnomaly()
	if err != nil {
		return nil, err
	}
	alert.Anomaly = an
	return alert, nil
}

func (a *AnomalyRecord) toAnomaly() (*anomaly.Anomaly, error) {
	details, err := anomaly.DecodeDetails(anomaly.Type(a.Type), []byte(a.Details))
	if err != nil {
		return nil, err
	}

	an := &anomaly.Anomaly{
		ID:         a.ID,
		Type:       anomaly.Type(a.Type),
		Severity:   anomaly.Severity(a.Severity),
		DetectedAt: a.DetectedAt,
		Details:    details,
	}
	if a.ProductID != nil {
		an.ProductID = *a.ProductID
	}
	return an, nil
}

func (p *ProductRecord) toProduct() anomaly.Product {
	return anomaly.Product{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		HSCode:   p.HSCode,
	}
}

func (s *ShipmentRecord) toShipment() anomaly.Shipment {
	return anomaly.Shipment{
		ID:        s.ID,
		ProductID: s.ProductID,
		UnitPrice: s.UnitPrice,
		Quantity:  s.Quantity,
		ShippedAt: s.ShipmentDate,
	}
}
