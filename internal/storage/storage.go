package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/metrics"
)

// DB wraps the GORM database connection and implements anomaly.Store
type DB struct {
	conn     *gorm.DB
	log      *logrus.Logger
	timeout  time.Duration
	products *gocache.Cache // product id -> anomaly.Product
}

// New creates a new database connection with GORM
func New(cfg *config.Config, log *logrus.Logger) (*DB, error) {
	gormLogger := logger.New(
		&gormLogAdapter{log: log},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	conn, err := gorm.Open(mysql.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DatabaseMaxConns)
	sqlDB.SetMaxIdleConns(cfg.DatabaseMaxConns / 2)
	sqlDB.SetConnMaxIdleTime(cfg.DatabaseMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("Database connection established")

	return &DB{
		conn:     conn,
		log:      log,
		timeout:  cfg.StoreTimeout,
		products: gocache.New(cfg.ProductCacheTTL, 2*cfg.ProductCacheTTL),
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// AutoMigrate runs GORM auto-migration (for development only)
func (db *DB) AutoMigrate() error {
	return db.conn.AutoMigrate(
		&AnomalyRecord{},
		&AlertRecord{},
		&ProductRecord{},
		&ShipmentRecord{},
	)
}

// Ping verifies the database is reachable, for readiness checks
func (db *DB) Ping(ctx context.Context) error {
	sqlDB, err := db.conn.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// GetAlert retrieves an alert with its anomaly. Returns nil, nil when not found.
func (db *DB) GetAlert(ctx context.Context, id string) (alert *anomaly.Alert, err error) {
	ctx, done := db.query(ctx, "get_alert")
	defer func() { done(err) }()

	var record AlertRecord
	result := db.conn.WithContext(ctx).Preload("Anomaly").Where("id = ?", id).First(&record)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return record.toAlert()
}

// ListAlerts retrieves alerts created since filter.Since, newest first
func (db *DB) ListAlerts(ctx context.Context, filter anomaly.AlertFilter) (alerts []anomaly.Alert, err error) {
	ctx, done := db.query(ctx, "list_alerts")
	defer func() { done(err) }()

	q := db.conn.WithContext(ctx).Preload("Anomaly").Order("created_at DESC")
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}
	if filter.ExcludeID != "" {
		q = q.Where("id <> ?", filter.ExcludeID)
	}
	if filter.ExcludeResolved {
		q = q.Where("status <> ?", string(anomaly.StatusResolved))
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var records []AlertRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}

	alerts = make([]anomaly.Alert, 0, len(records))
	for i := range records {
		alert, err := records[i].toAlert()
		if err != nil {
			db.log.WithError(err).WithField("alert_id", records[i].ID).Warn("Skipping alert with undecodable details")
			continue
		}
		alerts = append(alerts, *alert)
	}
	return alerts, nil
}

// ListProducts retrieves products by category and/or ids. Id lookups are served from
// the product cache when every requested product is cached.
func (db *DB) ListProducts(ctx context.Context, filter anomaly.ProductFilter) (products []anomaly.Product, err error) {
	if filter.Category == "" && len(filter.IDs) > 0 {
		if cached, ok := db.cachedProducts(filter.IDs); ok {
			metrics.RecordStoreQuery("list_products_cached", 0, nil)
			return cached, nil
		}
	}

	ctx, done := db.query(ctx, "list_products")
	defer func() { done(err) }()

	q := db.conn.WithContext(ctx).Order("id")
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if len(filter.IDs) > 0 {
		q = q.Where("id IN ?", filter.IDs)
	}

	var records []ProductRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}

	products = make([]anomaly.Product, 0, len(records))
	for i := range records {
		p := records[i].toProduct()
		db.products.SetDefault(p.ID, p)
		products = append(products, p)
	}
	return products, nil
}

// ListShipments retrieves shipments in a date range ordered by shipment date.
// The limit applies to the newest end of the range.
func (db *DB) ListShipments(ctx context.Context, filter anomaly.ShipmentFilter) (shipments []anomaly.Shipment, err error) {
	ctx, done := db.query(ctx, "list_shipments")
	defer func() { done(err) }()

	q := db.conn.WithContext(ctx).Order("shipment_date DESC").Order("id DESC")
	if filter.ProductID != "" {
		q = q.Where("product_id = ?", filter.ProductID)
	}
	if !filter.From.IsZero() {
		q = q.Where("shipment_date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("shipment_date <= ?", filter.To)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var records []ShipmentRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}

	shipments = make([]anomaly.Shipment, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		shipments = append(shipments, records[i].toShipment())
	}
	return shipments, nil
}

func (db *DB) cachedProducts(ids []string) ([]anomaly.Product, bool) {
	products := make([]anomaly.Product, 0, len(ids))
	for _, id := range ids {
		v, ok := db.products.Get(id)
		if !ok {
			return nil, false
		}
		products = append(products, v.(anomaly.Product))
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, true
}

// query bounds a store read with the configured timeout and returns a completion
// callback recording its metrics
func (db *DB) query(ctx context.Context, operation string) (context.Context, func(error)) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, db.timeout)
	return ctx, func(err error) {
		cancel()
		metrics.RecordStoreQuery(operation, time.Since(start), err)
	}
}

// gormLogAdapter adapts logrus to GORM's logger interface
type gormLogAdapter struct {
	log *logrus.Logger
}

func (l *gormLogAdapter) Printf(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}
