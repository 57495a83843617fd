package risk

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/config"
)

const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelLow      = "low"

	baselineReason = "Baseline monitoring"
)

// Breakdown holds the five sub-scores, each in [0,100]
type Breakdown struct {
	PriceDeviation       float64 `json:"price_deviation"`
	VolumeSurge          float64 `json:"volume_surge"`
	FXExposure           float64 `json:"fx_exposure"`
	SupplyChain          float64 `json:"supply_chain_risk"`
	HistoricalVolatility float64 `json:"historical_volatility"`
}

// Score is the composite risk of one alert
type Score struct {
	AlertID              string    `json:"alert_id"`
	AnomalyID            string    `json:"anomaly_id"`
	CompositeRiskScore   float64   `json:"composite_risk_score"`
	RiskBreakdown        Breakdown `json:"risk_breakdown"`
	RiskLevel            string    `json:"risk_level"`
	Ranking              int       `json:"ranking"`
	PrioritizationReason string    `json:"prioritization_reason"`
}

// Scorer computes composite risk scores
type Scorer struct {
	store anomaly.Store
	cfg   config.RiskConfig
	log   *logrus.Logger
}

// NewScorer creates a risk scorer
func NewScorer(store anomaly.Store, cfg config.RiskConfig, log *logrus.Logger) *Scorer {
	return &Scorer{store: store, cfg: cfg, log: log}
}

// ScoreActive scores every non-resolved alert and ranks them 1..N by descending
// composite score. Store failures yield an empty list.
func (s *Scorer) ScoreActive(ctx context.Context) []Score {
	alerts, err := s.store.ListAlerts(ctx, anomaly.AlertFilter{
		ExcludeResolved: true,
		Limit:           s.cfg.FetchLimit,
	})
	if err != nil {
		s.log.WithError(err).Warn("Failed to list active alerts")
		return []Score{}
	}

	products := s.products(ctx, alerts)
	scores := make([]Score, len(alerts))

	// Scoring is pure, so the group never fails
	var g errgroup.Group
	g.SetLimit(max(1, s.cfg.Workers))
	for i := range alerts {
		g.Go(func() error {
			var product *anomaly.Product
			if alerts[i].Anomaly != nil {
				if p, ok := products[alerts[i].Anomaly.ProductID]; ok {
					product = &p
				}
			}
			scores[i] = s.ScoreAlert(alerts[i], product)
			return nil
		})
	}
	_ = g.Wait()

	Rank(scores)
	return scores
}

// Rank sorts scores by descending composite score and assigns rankings 1..N
func Rank(scores []Score) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].CompositeRiskScore != scores[j].CompositeRiskScore {
			return scores[i].CompositeRiskScore > scores[j].CompositeRiskScore
		}
		return scores[i].AlertID < scores[j].AlertID
	})
	for i := range scores {
		scores[i].Ranking = i + 1
	}
}

func (s *Scorer) products(ctx context.Context, alerts []anomaly.Alert) map[string]anomaly.Product {
	ids := make([]string, 0, len(alerts))
	seen := make(map[string]bool)
	for _, a := range alerts {
		if a.Anomaly == nil || a.Anomaly.ProductID == "" || seen[a.Anomaly.ProductID] {
			continue
		}
		seen[a.Anomaly.ProductID] = true
		ids = append(ids, a.Anomaly.ProductID)
	}

	byID := make(map[string]anomaly.Product, len(ids))
	if len(ids) == 0 {
		return byID
	}
	products, err := s.store.ListProducts(ctx, anomaly.ProductFilter{IDs: ids})
	if err != nil {
		// Scores stay usable without the category bonus
		s.log.WithError(err).WithField("products", len(ids)).Warn("Failed to load products for risk scoring")
		return byID
	}
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID
}

// ScoreAlert computes the score of one alert. product may be nil. Ranking is left zero.
func (s *Scorer) ScoreAlert(alert anomaly.Alert, product *anomaly.Product) Score {
	score := Score{AlertID: alert.ID, RiskLevel: LevelLow, PrioritizationReason: baselineReason}
	if alert.Anomaly == nil {
		return score
	}
	score.AnomalyID = alert.Anomaly.ID
	b := s.Breakdown(alert.Anomaly, product)
	score.RiskBreakdown = b

	composite := b.PriceDeviation*s.cfg.PriceWeight +
		b.VolumeSurge*s.cfg.VolumeWeight +
		b.FXExposure*s.cfg.FXWeight +
		b.SupplyChain*s.cfg.SupplyChainWeight +
		b.HistoricalVolatility*s.cfg.VolatilityWeight
	score.CompositeRiskScore = Clamp(math.Round(composite))
	score.RiskLevel = s.Level(score.CompositeRiskScore)
	score.PrioritizationReason = s.Reason(b)
	return score
}

// Breakdown computes the five sub-scores from the anomaly details
func (s *Scorer) Breakdown(an *anomaly.Anomaly, product *anomaly.Product) Breakdown {
	var b Breakdown
	if an.Details == nil {
		return b
	}
	common := an.Details.Common()

	switch d := an.Details.(type) {
	case anomaly.PriceSpikeDetails:
		if d.PercentageChange != nil {
			b.PriceDeviation = Clamp(math.Abs(*d.PercentageChange) * 0.5)
		}
	case anomaly.TariffChangeDetails:
		if d.PercentageChange != nil {
			b.PriceDeviation = Clamp(math.Abs(*d.PercentageChange))
		}
	case anomaly.FXVolatilityDetails:
		if d.Volatility != nil {
			b.FXExposure = Clamp(*d.Volatility * 10)
		}
		if d.CurrencyRisk != nil {
			b.FXExposure = math.Max(b.FXExposure, Clamp(*d.CurrencyRisk*20))
		}
	}

	if common.VolumeSurge != nil {
		b.VolumeSurge = Clamp(*common.VolumeSurge * 10)
	}

	supply := 0.0
	if common.DependencyCount != nil {
		supply = float64(*common.DependencyCount) * 5
	}
	if product != nil && s.sensitive(product.Category) {
		supply += s.cfg.SensitiveCategoryAdd
	}
	b.SupplyChain = Clamp(supply)

	if common.ZScore != nil {
		b.HistoricalVolatility = Clamp(math.Abs(*common.ZScore) * 15)
	}
	return b
}

func (s *Scorer) sensitive(category string) bool {
	for _, c := range s.cfg.SensitiveCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Level maps a composite score to a risk level
func (s *Scorer) Level(composite float64) string {
	switch {
	case composite >= s.cfg.CriticalLevel:
		return LevelCritical
	case composite >= s.cfg.HighLevel:
		return LevelHigh
	case composite >= s.cfg.MediumLevel:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Reason lists the sub-scores above the reason threshold in fixed order
func (s *Scorer) Reason(b Breakdown) string {
	var parts []string
	for _, c := range []struct {
		label string
		value float64
	}{
		{"Price deviation", b.PriceDeviation},
		{"Volume surge", b.VolumeSurge},
		{"FX exposure", b.FXExposure},
		{"Supply chain risk", b.SupplyChain},
		{"Historical volatility", b.HistoricalVolatility},
	} {
		if c.value > s.cfg.ReasonThreshold {
			parts = append(parts, c.label)
		}
	}
	if len(parts) == 0 {
		return baselineReason
	}
	return strings.Join(parts, " · ")
}

// Elevated counts the sub-scores above the reason threshold
func (s *Scorer) Elevated(b Breakdown) int {
	n := 0
	for _, v := range []float64{b.PriceDeviation, b.VolumeSurge, b.FXExposure, b.SupplyChain, b.HistoricalVolatility} {
		if v > s.cfg.ReasonThreshold {
			n++
		}
	}
	return n
}

// Clamp bounds v to [0,100]; NaN maps to 0
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
