package correlation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/config"
)

const (
	TypePositive = "positive"
	TypeNegative = "negative"
	TypeNeutral  = "neutral"

	StrengthWeak     = "weak"
	StrengthModerate = "moderate"
	StrengthStrong   = "strong"

	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// Result is the correlation between two products' price series. Only one
// direction of each pair is reported.
type Result struct {
	ProductA               string  `json:"product_a"`
	ProductB               string  `json:"product_b"`
	CorrelationCoefficient float64 `json:"correlation_coefficient"`
	CorrelationType        string  `json:"correlation_type"`
	Strength               string  `json:"strength"`
	Interpretation         string  `json:"interpretation"`
	SampleSize             int     `json:"sample_size"`
	VolumeCorrelation      float64 `json:"volume_correlation"`
}

// SectorTrend aggregates the strong correlations touching one product category
type SectorTrend struct {
	Category           string  `json:"category"`
	AverageCorrelation float64 `json:"average_correlation"`
	Trend              string  `json:"trend"`
	Significance       string  `json:"significance"`
	CorrelatedPairs    int     `json:"correlated_pairs"`
}

// Report is the output of one correlation analysis
type Report struct {
	ProductCorrelations []Result      `json:"product_correlations"`
	SectorTrends        []SectorTrend `json:"sector_trends"`
}

func emptyReport() *Report {
	return &Report{ProductCorrelations: []Result{}, SectorTrends: []SectorTrend{}}
}

type series struct {
	product anomaly.Product
	prices  []float64
	volumes []float64
}

// Analyzer correlates product price series built from shipments
type Analyzer struct {
	store anomaly.Store
	cfg   config.CorrelationConfig
	clock clock.Clock
	log   *logrus.Logger
}

// NewAnalyzer creates a correlation analyzer
func NewAnalyzer(store anomaly.Store, cfg config.CorrelationConfig, clk clock.Clock, log *logrus.Logger) *Analyzer {
	return &Analyzer{store: store, cfg: cfg, clock: clk, log: log}
}

// Analyze correlates every pair of products (optionally in one category) over the
// shipments of the last windowDays. Store failures yield an empty report.
func (a *Analyzer) Analyze(ctx context.Context, category string, windowDays int) *Report {
	products, err := a.store.ListProducts(ctx, anomaly.ProductFilter{Category: category})
	if err != nil {
		a.log.WithError(err).WithField("category", category).Warn("Failed to list products")
		return emptyReport()
	}
	if len(products) < 2 {
		return emptyReport()
	}

	now := a.clock.Now()
	shipments, err := a.store.ListShipments(ctx, anomaly.ShipmentFilter{
		From:  now.Add(-time.Duration(windowDays) * 24 * time.Hour),
		To:    now,
		Limit: a.cfg.ShipmentLimit,
	})
	if err != nil {
		a.log.WithError(err).WithField("window_days", windowDays).Warn("Failed to list shipments")
		return emptyReport()
	}

	all := a.buildSeries(products, shipments)
	report := emptyReport()
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if r, ok := a.correlate(all[i], all[j]); ok {
				report.ProductCorrelations = append(report.ProductCorrelations, r)
			}
		}
	}
	sort.SliceStable(report.ProductCorrelations, func(i, j int) bool {
		return math.Abs(report.ProductCorrelations[i].CorrelationCoefficient) >
			math.Abs(report.ProductCorrelations[j].CorrelationCoefficient)
	})

	report.SectorTrends = a.sectorTrends(products, report.ProductCorrelations)

	a.log.WithFields(logrus.Fields{
		"category":     category,
		"products":     len(all),
		"shipments":    len(shipments),
		"correlations": len(report.ProductCorrelations),
	}).Debug("Computed product correlations")

	return report
}

// buildSeries groups shipments per product in ship date order, keeping products
// with enough samples. Products come back in id order.
func (a *Analyzer) buildSeries(products []anomaly.Product, shipments []anomaly.Shipment) []*series {
	byProduct := make(map[string]*series, len(products))
	for _, p := range products {
		byProduct[p.ID] = &series{product: p}
	}

	sorted := append([]anomaly.Shipment(nil), shipments...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ShippedAt.Before(sorted[j].ShippedAt) })
	for _, s := range sorted {
		if ps, ok := byProduct[s.ProductID]; ok {
			ps.prices = append(ps.prices, s.UnitPrice)
			ps.volumes = append(ps.volumes, s.Quantity)
		}
	}

	out := make([]*series, 0, len(byProduct))
	for _, ps := range byProduct {
		if len(ps.prices) >= a.cfg.MinSamples {
			out = append(out, ps)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].product.ID < out[j].product.ID })
	return out
}

func (a *Analyzer) correlate(x, y *series) (Result, bool) {
	n := len(x.prices)
	if len(y.prices) < n {
		n = len(y.prices)
	}
	if n < a.cfg.MinSamples {
		return Result{}, false
	}

	r := Pearson(x.prices[:n], y.prices[:n])
	if math.Abs(r) <= a.cfg.Threshold {
		return Result{}, false
	}

	corrType := a.Classify(r)
	strength := a.Strength(r)
	return Result{
		ProductA:               x.product.ID,
		ProductB:               y.product.ID,
		CorrelationCoefficient: r,
		CorrelationType:        corrType,
		Strength:               strength,
		Interpretation:         interpret(x.product, y.product, corrType, strength),
		SampleSize:             n,
		VolumeCorrelation:      Pearson(x.volumes[:n], y.volumes[:n]),
	}, true
}

// Classify names the direction of a coefficient. Pairs reported by Analyze always
// exceed the retention threshold, so neutral only appears for direct calls.
func (a *Analyzer) Classify(r float64) string {
	switch {
	case r > a.cfg.Threshold:
		return TypePositive
	case r < -a.cfg.Threshold:
		return TypeNegative
	default:
		return TypeNeutral
	}
}

// Strength buckets the absolute coefficient
func (a *Analyzer) Strength(r float64) string {
	abs := math.Abs(r)
	switch {
	case abs < a.cfg.ModerateThreshold:
		return StrengthWeak
	case abs < a.cfg.StrongThreshold:
		return StrengthModerate
	default:
		return StrengthStrong
	}
}

func interpret(a, b anomaly.Product, corrType, strength string) string {
	nameA, nameB := displayName(a), displayName(b)
	switch corrType {
	case TypePositive:
		return fmt.Sprintf("%s positive correlation: %s and %s prices tend to move together", capitalize(strength), nameA, nameB)
	case TypeNegative:
		return fmt.Sprintf("%s negative correlation: %s and %s prices tend to move in opposite directions", capitalize(strength), nameA, nameB)
	default:
		return fmt.Sprintf("No consistent price relationship between %s and %s", nameA, nameB)
	}
}

func displayName(p anomaly.Product) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// sectorTrends averages the strong correlations touching each category
func (a *Analyzer) sectorTrends(products []anomaly.Product, results []Result) []SectorTrend {
	categoryOf := make(map[string]string, len(products))
	for _, p := range products {
		categoryOf[p.ID] = p.Category
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, r := range results {
		if r.Strength != StrengthStrong {
			continue
		}
		cats := []string{categoryOf[r.ProductA]}
		if cb := categoryOf[r.ProductB]; cb != cats[0] {
			cats = append(cats, cb)
		}
		for _, c := range cats {
			if c == "" {
				continue
			}
			sums[c] += r.CorrelationCoefficient
			counts[c]++
		}
	}

	trends := make([]SectorTrend, 0, len(counts))
	for category, count := range counts {
		avg := sums[category] / float64(count)
		trend := TrendStable
		if avg > a.cfg.TrendThreshold {
			trend = TrendUp
		} else if avg < -a.cfg.TrendThreshold {
			trend = TrendDown
		}
		trends = append(trends, SectorTrend{
			Category:           category,
			AverageCorrelation: avg,
			Trend:              trend,
			Significance:       significance(count),
			CorrelatedPairs:    count,
		})
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Category < trends[j].Category })
	return trends
}

func significance(count int) string {
	switch {
	case count > 5:
		return "high"
	case count > 2:
		return "medium"
	default:
		return "low"
	}
}

// Pearson returns the correlation coefficient of two equal-length series, clamped
// to [-1,1]. Short or constant series yield 0.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, r))
}
