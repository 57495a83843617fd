package temporal

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/graph"
)

const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Indicator is an alert that precedes (leading) or follows (lagging) the seed
type Indicator struct {
	AlertID     string           `json:"alert_id"`
	Type        anomaly.Type     `json:"type"`
	Severity    anomaly.Severity `json:"severity"`
	Timestamp   time.Time        `json:"timestamp"`
	DaysOffset  float64          `json:"days_offset"`
	Correlation float64          `json:"correlation"`
	Confidence  float64          `json:"confidence"`
}

// CausalRelationship is a cause type observed one window ahead of an effect type
type CausalRelationship struct {
	CauseType  anomaly.Type `json:"cause_type"`
	EffectType anomaly.Type `json:"effect_type"`
	Confidence float64      `json:"confidence"`
	Evidence   int          `json:"evidence"`
}

// SeasonalPattern is a recurring period detected for one anomaly type
type SeasonalPattern struct {
	Type          anomaly.Type `json:"type"`
	PeriodDays    float64      `json:"period_days"`
	MatchFraction float64      `json:"match_fraction"`
	Occurrences   int          `json:"occurrences"`
}

// Trend is the direction of severity over time for one anomaly type
type Trend struct {
	Type      anomaly.Type `json:"type"`
	Direction string       `json:"direction"`
	Slope     float64      `json:"slope"`
	Samples   int          `json:"samples"`
}

// Analysis is the temporal view around one seed alert
type Analysis struct {
	AlertID             string               `json:"alert_id"`
	LeadingIndicators   []Indicator          `json:"leading_indicators"`
	LaggingIndicators   []Indicator          `json:"lagging_indicators"`
	CausalRelationships []CausalRelationship `json:"causal_relationships"`
	SeasonalPatterns    []SeasonalPattern    `json:"seasonal_patterns"`
	Trends              []Trend              `json:"trends"`
}

type typePair struct {
	a, b anomaly.Type
}

// Symmetric type correlation used for lead/lag indicators
var typeCorrelation = map[typePair]float64{
	{anomaly.TypeTariffChange, anomaly.TypePriceSpike}:   0.80,
	{anomaly.TypePriceSpike, anomaly.TypeFreightSurge}:   0.75,
	{anomaly.TypeFXVolatility, anomaly.TypePriceSpike}:   0.70,
	{anomaly.TypeTariffChange, anomaly.TypeFreightSurge}: 0.65,
	{anomaly.TypeFXVolatility, anomaly.TypeTariffChange}: 0.65,
}

// Directional cause -> effect priors
var causalPriors = map[typePair]float64{
	{anomaly.TypeTariffChange, anomaly.TypePriceSpike}:   0.90,
	{anomaly.TypeFXVolatility, anomaly.TypePriceSpike}:   0.85,
	{anomaly.TypeFreightSurge, anomaly.TypePriceSpike}:   0.80,
	{anomaly.TypeTariffChange, anomaly.TypeFreightSurge}: 0.70,
	{anomaly.TypeFXVolatility, anomaly.TypeTariffChange}: 0.65,
}

// TypeCorrelation estimates how strongly two anomaly types move together
func TypeCorrelation(a, b anomaly.Type) float64 {
	if a == b {
		return 0.3
	}
	if v, ok := typeCorrelation[typePair{a, b}]; ok {
		return v
	}
	if v, ok := typeCorrelation[typePair{b, a}]; ok {
		return v
	}
	return 0.2
}

// CausalPrior returns the prior that cause drives effect, zero when unknown
func CausalPrior(cause, effect anomaly.Type) float64 {
	return causalPriors[typePair{cause, effect}]
}

// Analyzer detects timing relationships around an alert
type Analyzer struct {
	loader *graph.Loader
	cfg    config.TemporalConfig
	log    *logrus.Logger
}

// NewAnalyzer creates a temporal analyzer
func NewAnalyzer(loader *graph.Loader, cfg config.TemporalConfig, log *logrus.Logger) *Analyzer {
	return &Analyzer{loader: loader, cfg: cfg, log: log}
}

// Analyze runs every temporal detector over the seed and its window. Returns nil
// when the seed cannot be resolved; a failed window read yields empty results.
func (a *Analyzer) Analyze(ctx context.Context, alertID string, windowDays int) *Analysis {
	seed := a.loader.Seed(ctx, alertID)
	if seed == nil {
		return nil
	}

	related, _ := a.loader.Window(ctx, seed.ID, windowDays, a.cfg.FetchLimit)
	seedNode, _ := graph.NodeFromAlert(seed)
	others := graph.Nodes(related)
	all := append([]graph.Node{seedNode}, others...)

	leading, lagging := a.Indicators(seedNode, others)
	result := &Analysis{
		AlertID:             alertID,
		LeadingIndicators:   leading,
		LaggingIndicators:   lagging,
		CausalRelationships: a.Causal(all, windowDays),
		SeasonalPatterns:    a.Seasonality(all),
		Trends:              a.Trends(all),
	}

	a.log.WithFields(logrus.Fields{
		"alert_id": alertID,
		"related":  len(others),
		"leading":  len(leading),
		"lagging":  len(lagging),
		"causal":   len(result.CausalRelationships),
	}).Debug("Temporal analysis complete")

	return result
}

// Indicators splits related alerts into those strictly before and strictly after
// the seed within the lead/lag window, keeping those whose type correlation qualifies
func (a *Analyzer) Indicators(seed graph.Node, related []graph.Node) (leading, lagging []Indicator) {
	leading, lagging = []Indicator{}, []Indicator{}
	for _, n := range related {
		if n.ID == seed.ID {
			continue
		}
		offset := n.Timestamp.Sub(seed.Timestamp).Hours() / 24
		if offset == 0 || math.Abs(offset) > a.cfg.LeadLagWindowDays {
			continue
		}
		corr := TypeCorrelation(n.Type, seed.Type)
		if corr <= a.cfg.IndicatorThreshold {
			continue
		}
		ind := Indicator{
			AlertID:     n.ID,
			Type:        n.Type,
			Severity:    n.Severity,
			Timestamp:   n.Timestamp,
			DaysOffset:  offset,
			Correlation: corr,
			Confidence:  corr * 100,
		}
		if offset < 0 {
			leading = append(leading, ind)
		} else {
			lagging = append(lagging, ind)
		}
	}
	return a.topIndicators(leading), a.topIndicators(lagging)
}

func (a *Analyzer) topIndicators(list []Indicator) []Indicator {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Confidence != list[j].Confidence {
			return list[i].Confidence > list[j].Confidence
		}
		return math.Abs(list[i].DaysOffset) < math.Abs(list[j].DaysOffset)
	})
	if len(list) > a.cfg.MaxIndicators {
		list = list[:a.cfg.MaxIndicators]
	}
	return list
}

// Causal buckets alerts into windowDays/CausalBuckets day windows from the earliest
// alert and records different-typed pairs in adjacent windows whose prior qualifies
func (a *Analyzer) Causal(nodes []graph.Node, windowDays int) []CausalRelationship {
	relationships := []CausalRelationship{}
	if len(nodes) < 2 {
		return relationships
	}

	bucketDays := math.Max(1, float64(windowDays)/float64(a.cfg.CausalBuckets))
	earliest := nodes[0].Timestamp
	for _, n := range nodes[1:] {
		if n.Timestamp.Before(earliest) {
			earliest = n.Timestamp
		}
	}

	buckets := make(map[int][]graph.Node)
	for _, n := range nodes {
		k := int(math.Floor(n.Timestamp.Sub(earliest).Hours() / 24 / bucketDays))
		buckets[k] = append(buckets[k], n)
	}

	index := make(map[typePair]int)
	for k, causes := range buckets {
		effects := buckets[k+1]
		for _, cause := range causes {
			for _, effect := range effects {
				if cause.Type == effect.Type {
					continue
				}
				prior := CausalPrior(cause.Type, effect.Type)
				if prior <= a.cfg.CausalThreshold {
					continue
				}
				pair := typePair{cause.Type, effect.Type}
				if i, ok := index[pair]; ok {
					relationships[i].Evidence++
					continue
				}
				index[pair] = len(relationships)
				relationships = append(relationships, CausalRelationship{
					CauseType:  cause.Type,
					EffectType: effect.Type,
					Confidence: prior * 100,
					Evidence:   1,
				})
			}
		}
	}

	sort.Slice(relationships, func(i, j int) bool {
		ri, rj := relationships[i], relationships[j]
		if ri.Confidence != rj.Confidence {
			return ri.Confidence > rj.Confidence
		}
		if ri.Evidence != rj.Evidence {
			return ri.Evidence > rj.Evidence
		}
		if ri.CauseType != rj.CauseType {
			return ri.CauseType < rj.CauseType
		}
		return ri.EffectType < rj.EffectType
	})
	if len(relationships) > a.cfg.MaxCausal {
		relationships = relationships[:a.cfg.MaxCausal]
	}
	return relationships
}

// Seasonality tests each configured period against the gaps between consecutive
// occurrences of each type
func (a *Analyzer) Seasonality(nodes []graph.Node) []SeasonalPattern {
	patterns := []SeasonalPattern{}
	byType, types := groupByType(nodes)

	for _, t := range types {
		days := byType[t]
		if len(days) < 3 {
			continue
		}
		sort.Float64s(days)
		gaps := make([]float64, 0, len(days)-1)
		for i := 1; i < len(days); i++ {
			gaps = append(gaps, days[i]-days[i-1])
		}

		for _, period := range a.cfg.SeasonalPeriods {
			matches := 0
			for _, g := range gaps {
				if math.Abs(g-period) <= period*a.cfg.SeasonalTolerance {
					matches++
				}
			}
			fraction := float64(matches) / float64(len(gaps))
			if fraction > a.cfg.SeasonalMinFraction {
				patterns = append(patterns, SeasonalPattern{
					Type:          t,
					PeriodDays:    period,
					MatchFraction: fraction,
					Occurrences:   len(days),
				})
			}
		}
	}
	return patterns
}

// Trends fits severity ordinal against time per type with ordinary least squares
func (a *Analyzer) Trends(nodes []graph.Node) []Trend {
	trends := []Trend{}
	byType, types := groupByType(nodes)
	severities := make(map[anomaly.Type][]float64)
	for _, n := range nodes {
		severities[n.Type] = append(severities[n.Type], float64(n.Severity.Ordinal()))
	}

	for _, t := range types {
		days := byType[t]
		if len(days) < 2 {
			continue
		}
		first := days[0]
		for _, d := range days {
			first = math.Min(first, d)
		}
		xs := make([]float64, len(days))
		for i, d := range days {
			xs[i] = d - first
		}

		_, slope := stat.LinearRegression(xs, severities[t], nil, false)
		if math.IsNaN(slope) || math.IsInf(slope, 0) {
			slope = 0
		}
		direction := TrendStable
		if slope > a.cfg.StableSlope {
			direction = TrendIncreasing
		} else if slope < -a.cfg.StableSlope {
			direction = TrendDecreasing
		}
		trends = append(trends, Trend{Type: t, Direction: direction, Slope: slope, Samples: len(days)})
	}
	return trends
}

// groupByType returns occurrence days (fractional, since the Unix epoch) per type
// in input order, plus the types in first-seen order
func groupByType(nodes []graph.Node) (map[anomaly.Type][]float64, []anomaly.Type) {
	byType := make(map[anomaly.Type][]float64)
	var types []anomaly.Type
	for _, n := range nodes {
		if _, ok := byType[n.Type]; !ok {
			types = append(types, n.Type)
		}
		byType[n.Type] = append(byType[n.Type], float64(n.Timestamp.Unix())/86400)
	}
	return byType, types
}
