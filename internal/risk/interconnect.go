package risk

import (
	"context"
	"math"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/graph"
)

// Interconnection summarizes how exposed one alert is through its connections
type Interconnection struct {
	AlertID         string  `json:"alert_id"`
	OverallRisk     float64 `json:"overall_risk"`
	CascadingImpact float64 `json:"cascading_impact"`
	TotalFactors    int     `json:"total_factors"`
	RelatedAlerts   int     `json:"related_alerts"`
	RiskScore       Score   `json:"risk_score"`
}

var severityImpact = map[anomaly.Severity]float64{
	anomaly.SeverityLow:      10,
	anomaly.SeverityMedium:   20,
	anomaly.SeverityHigh:     30,
	anomaly.SeverityCritical: 40,
}

// Interconnect scores the seed and weighs its graph neighbours by edge weight and
// severity. A nil graph counts as no connections. Returns nil when the seed cannot
// be resolved.
func (s *Scorer) Interconnect(ctx context.Context, alertID string, g *graph.NetworkGraph) *Interconnection {
	alert, err := s.store.GetAlert(ctx, alertID)
	if err != nil {
		s.log.WithError(err).WithField("alert_id", alertID).Warn("Failed to load alert for interconnection")
		return nil
	}
	if alert == nil || alert.Anomaly == nil {
		return nil
	}

	var product *anomaly.Product
	if pid := alert.Anomaly.ProductID; pid != "" {
		products, err := s.store.ListProducts(ctx, anomaly.ProductFilter{IDs: []string{pid}})
		if err != nil {
			s.log.WithError(err).WithField("product_id", pid).Warn("Failed to load product for interconnection")
		} else if len(products) > 0 {
			product = &products[0]
		}
	}

	score := s.ScoreAlert(*alert, product)

	impact := 0.0
	related := make(map[string]bool)
	if g != nil {
		for _, e := range g.Edges {
			if e.Source != alertID || related[e.Target] {
				continue
			}
			related[e.Target] = true
			if n, ok := g.Node(e.Target); ok {
				w := severityImpact[n.Severity]
				if w == 0 {
					w = severityImpact[anomaly.SeverityLow]
				}
				impact += e.Weight * w
			}
		}
	}

	return &Interconnection{
		AlertID:         alertID,
		OverallRisk:     score.CompositeRiskScore,
		CascadingImpact: math.Min(100, impact),
		TotalFactors:    len(related) + s.Elevated(score.RiskBreakdown),
		RelatedAlerts:   len(related),
		RiskScore:       score,
	}
}
