package graph

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/liamashdown/tradeintel/internal/anomaly"
)

// Loader performs the bounded store reads shared by the alert-window analyzers.
// Store failures are logged and reported as insufficient data.
type Loader struct {
	store anomaly.Store
	clock clock.Clock
	log   *logrus.Logger
}

// NewLoader creates a loader reading from store
func NewLoader(store anomaly.Store, clk clock.Clock, log *logrus.Logger) *Loader {
	return &Loader{store: store, clock: clk, log: log}
}

// Store returns the underlying store
func (l *Loader) Store() anomaly.Store {
	return l.store
}

// Now returns the loader's current time
func (l *Loader) Now() time.Time {
	return l.clock.Now()
}

// Seed resolves an alert with its anomaly. Returns nil when either is missing or the read fails.
func (l *Loader) Seed(ctx context.Context, alertID string) *anomaly.Alert {
	alert, err := l.store.GetAlert(ctx, alertID)
	if err != nil {
		l.log.WithError(err).WithField("alert_id", alertID).Warn("Failed to load seed alert")
		return nil
	}
	if alert == nil {
		l.log.WithField("alert_id", alertID).Debug("Seed alert not found")
		return nil
	}
	if alert.Anomaly == nil {
		l.log.WithField("alert_id", alertID).Debug("Seed alert has no anomaly")
		return nil
	}
	return alert
}

// Window lists alerts created in the last windowDays, newest first. ok is false when
// the read failed.
func (l *Loader) Window(ctx context.Context, excludeID string, windowDays, limit int) ([]anomaly.Alert, bool) {
	since := l.clock.Now().Add(-time.Duration(windowDays) * 24 * time.Hour)
	alerts, err := l.store.ListAlerts(ctx, anomaly.AlertFilter{
		ExcludeID: excludeID,
		Since:     since,
		Limit:     limit,
	})
	if err != nil {
		l.log.WithError(err).WithFields(logrus.Fields{
			"exclude_id":  excludeID,
			"window_days": windowDays,
		}).Warn("Failed to list alerts")
		return nil, false
	}
	return alerts, true
}

// Nodes converts alerts to graph nodes, skipping alerts without an anomaly
func Nodes(alerts []anomaly.Alert) []Node {
	nodes := make([]Node, 0, len(alerts))
	for i := range alerts {
		if n, ok := NodeFromAlert(&alerts[i]); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}
