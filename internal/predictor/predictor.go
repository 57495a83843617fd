package predictor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/metrics"
	"github.com/liamashdown/tradeintel/internal/multihop"
	"github.com/liamashdown/tradeintel/internal/network"
	"github.com/liamashdown/tradeintel/internal/risk"
	"github.com/liamashdown/tradeintel/internal/temporal"
)

// ErrNoData is returned by a source that has nothing for the requested alert
var ErrNoData = errors.New("no data")

// Sources supplies the analyses a prediction is fused from
type Sources interface {
	LoadInterconnection(ctx context.Context, alertID string, windowDays int) (*risk.Interconnection, error)
	LoadNetworkMetrics(ctx context.Context, alertID string, windowDays int) (*network.Metrics, error)
	LoadTemporal(ctx context.Context, alertID string, windowDays int) (*temporal.Analysis, error)
	LoadMultiHop(ctx context.Context, alertID string, maxHops, windowDays int) ([]multihop.Connection, error)
}

// Interval is a closed confidence range within [0,100]
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// HistoricalCase is an earlier alert whose type has preceded the seed's before
type HistoricalCase struct {
	AlertID    string  `json:"alert_id"`
	Type       string  `json:"type"`
	DaysBefore float64 `json:"days_before"`
	Similarity float64 `json:"similarity"`
}

// CascadePrediction is the forward-looking estimate for one alert
type CascadePrediction struct {
	AlertID                   string           `json:"alert_id"`
	LikelihoodScore           float64          `json:"likelihood_score"`
	PredictedImpact           float64          `json:"predicted_impact"`
	TimeToCascadeDays         int              `json:"time_to_cascade_days"`
	ConfidenceInterval        Interval         `json:"confidence_interval"`
	SimilarHistoricalCases    []HistoricalCase `json:"similar_historical_cases"`
	RiskFactors               []string         `json:"risk_factors"`
	MitigationRecommendations []string         `json:"mitigation_recommendations"`
	Degraded                  bool             `json:"degraded"`
}

const maxHistoricalCases = 5

// inputs are the scalar signals extracted from every source
type inputs struct {
	baseRisk      float64
	cascadeImpact float64
	relatedAlerts int
	totalFactors  int
	topCentrality float64
	topPageRank   float64
	criticalPaths int
	leading       int
	lagging       int
	causal        int
	maxHop        int
	compoundRisk  float64
	paths         int
}

// Predictor fuses the analyzers into a cascade prediction
type Predictor struct {
	sources Sources
	cfg     config.PredictorConfig
	log     *logrus.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a predictor. A nil rng is seeded from the wall clock.
func New(sources Sources, cfg config.PredictorConfig, rng *rand.Rand, log *logrus.Logger) *Predictor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Predictor{sources: sources, cfg: cfg, rng: rng, log: log}
}

// Predict always answers: when the interconnection or network data is missing the
// fixed degraded default is returned. Temporal and multi-hop failures count as zero.
func (p *Predictor) Predict(ctx context.Context, alertID string, windowDays int) *CascadePrediction {
	var (
		inter     *risk.Interconnection
		netm      *network.Metrics
		temp      *temporal.Analysis
		conns     []multihop.Connection
		interErr  error
		metricErr error
		g         multierror.Group
	)

	g.Go(func() error {
		var err error
		inter, err = p.sources.LoadInterconnection(ctx, alertID, windowDays)
		if err == nil && inter == nil {
			err = ErrNoData
		}
		if err != nil {
			interErr = fmt.Errorf("load interconnection: %w", err)
		}
		return interErr
	})
	g.Go(func() error {
		var err error
		netm, err = p.sources.LoadNetworkMetrics(ctx, alertID, windowDays)
		if err == nil && netm == nil {
			err = ErrNoData
		}
		if err != nil {
			metricErr = fmt.Errorf("load network metrics: %w", err)
		}
		return metricErr
	})
	g.Go(func() error {
		var err error
		temp, err = p.sources.LoadTemporal(ctx, alertID, windowDays)
		if err != nil {
			return fmt.Errorf("load temporal analysis: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		conns, err = p.sources.LoadMultiHop(ctx, alertID, p.cfg.MaxHops, windowDays)
		if err != nil {
			return fmt.Errorf("load multi-hop connections: %w", err)
		}
		return nil
	})

	if merr := g.Wait(); merr.ErrorOrNil() != nil {
		p.log.WithError(merr).WithFields(logrus.Fields{
			"alert_id": alertID,
			"failures": merr.Len(),
		}).Warn("Cascade prediction inputs incomplete")
	}

	if interErr != nil || metricErr != nil {
		prediction := Degraded(alertID)
		metrics.RecordPrediction(prediction.LikelihoodScore, true)
		return prediction
	}

	in := extract(inter, netm, temp, conns)
	likelihood := p.likelihood(in)
	prediction := &CascadePrediction{
		AlertID:                   alertID,
		LikelihoodScore:           likelihood,
		PredictedImpact:           p.impact(in),
		TimeToCascadeDays:         p.timeToCascade(in),
		ConfidenceInterval:        Confidence(evidence(in)),
		SimilarHistoricalCases:    similarCases(temp),
		RiskFactors:               riskFactors(in, temp),
		MitigationRecommendations: mitigations(likelihood, in, temp),
	}

	p.log.WithFields(logrus.Fields{
		"alert_id":   alertID,
		"likelihood": prediction.LikelihoodScore,
		"impact":     prediction.PredictedImpact,
		"days":       prediction.TimeToCascadeDays,
	}).Debug("Cascade prediction complete")

	metrics.RecordPrediction(prediction.LikelihoodScore, false)
	return prediction
}

// Degraded is the fixed answer returned when core inputs are unavailable
func Degraded(alertID string) *CascadePrediction {
	return &CascadePrediction{
		AlertID:                   alertID,
		LikelihoodScore:           50,
		PredictedImpact:           50,
		TimeToCascadeDays:         30,
		ConfidenceInterval:        Interval{Lower: 30, Upper: 70},
		SimilarHistoricalCases:    []HistoricalCase{},
		RiskFactors:               []string{},
		MitigationRecommendations: []string{},
		Degraded:                  true,
	}
}

func extract(inter *risk.Interconnection, netm *network.Metrics, temp *temporal.Analysis, conns []multihop.Connection) inputs {
	in := inputs{
		baseRisk:      inter.OverallRisk,
		cascadeImpact: inter.CascadingImpact,
		relatedAlerts: inter.RelatedAlerts,
		totalFactors:  inter.TotalFactors,
		topCentrality: netm.MaxBetweenness(),
		topPageRank:   netm.MaxPageRank(),
		criticalPaths: len(netm.CriticalPaths),
		paths:         len(conns),
	}
	if temp != nil {
		in.leading = len(temp.LeadingIndicators)
		in.lagging = len(temp.LaggingIndicators)
		in.causal = len(temp.CausalRelationships)
	}
	for _, c := range conns {
		in.maxHop = max(in.maxHop, c.Hops)
		in.compoundRisk = math.Max(in.compoundRisk, c.CompoundRisk)
	}
	return in
}

// likelihood is the weighted combination of every signal, bounded to [0,100]
func (p *Predictor) likelihood(in inputs) float64 {
	score := in.baseRisk*p.cfg.BaseRiskWeight +
		in.cascadeImpact*p.cfg.CascadeImpactWeight +
		in.topCentrality*100*p.cfg.CentralityWeight +
		math.Min(float64(in.criticalPaths)*10, 100)*p.cfg.CriticalPathWeight +
		float64(in.leading)*10*p.cfg.LeadingWeight +
		math.Min(float64(in.maxHop)*20, 100)*p.cfg.HopWeight +
		in.compoundRisk*p.cfg.CompoundRiskWeight
	return risk.Clamp(math.Round(score*10) / 10)
}

// impact adds a share of the base risk to the cascading impact, bounded to [0,100]
func (p *Predictor) impact(in inputs) float64 {
	impact := in.cascadeImpact + in.baseRisk*p.cfg.ImpactBaseRiskShare
	return risk.Clamp(math.Round(impact*10) / 10)
}

// timeToCascade draws a day count from the range for the risk tier, or returns the
// range midpoint when the predictor is configured deterministic
func (p *Predictor) timeToCascade(in inputs) int {
	lo, hi := timeRange(in)
	if p.cfg.Deterministic {
		return (lo + hi) / 2
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + p.rng.Intn(hi-lo+1)
}

// timeRange returns the inclusive day range for the risk tier
func timeRange(in inputs) (int, int) {
	switch {
	case in.baseRisk >= 80:
		return 1, 8
	case in.baseRisk >= 60:
		return 7, 21
	case in.baseRisk >= 40:
		return 14, 44
	case in.causal >= 3 || in.relatedAlerts >= 10:
		return 21, 45
	default:
		return 30, 60
	}
}

func evidence(in inputs) int {
	return in.totalFactors + in.leading + in.lagging + in.causal + in.paths
}

// Confidence narrows the interval as evidence accumulates
func Confidence(evidence int) Interval {
	switch {
	case evidence >= 20:
		return Interval{Lower: 80, Upper: 100}
	case evidence >= 10:
		return Interval{Lower: 60, Upper: 90}
	case evidence >= 5:
		return Interval{Lower: 40, Upper: 80}
	default:
		return Interval{Lower: 20, Upper: 60}
	}
}

func similarCases(temp *temporal.Analysis) []HistoricalCase {
	cases := []HistoricalCase{}
	if temp == nil {
		return cases
	}
	// Leading indicators arrive sorted by confidence
	for _, ind := range temp.LeadingIndicators {
		if len(cases) == maxHistoricalCases {
			break
		}
		cases = append(cases, HistoricalCase{
			AlertID:    ind.AlertID,
			Type:       string(ind.Type),
			DaysBefore: math.Round(-ind.DaysOffset*10) / 10,
			Similarity: ind.Confidence,
		})
	}
	return cases
}

func riskFactors(in inputs, temp *temporal.Analysis) []string {
	factors := []string{}
	if in.baseRisk >= 50 {
		factors = append(factors, fmt.Sprintf("High composite risk score (%.0f)", in.baseRisk))
	}
	if in.cascadeImpact >= 50 {
		factors = append(factors, fmt.Sprintf("Significant cascading impact across %d related alerts", in.relatedAlerts))
	}
	if in.topCentrality >= 0.5 {
		factors = append(factors, fmt.Sprintf("Alert network has a central hub (betweenness %.2f, top PageRank %.2f)", in.topCentrality, in.topPageRank))
	}
	if in.criticalPaths >= 3 {
		factors = append(factors, fmt.Sprintf("%d critical propagation paths", in.criticalPaths))
	}
	if in.leading >= 3 {
		factors = append(factors, fmt.Sprintf("%d leading indicators observed", in.leading))
	}
	if temp != nil {
		for i, rel := range temp.CausalRelationships {
			if i == 3 {
				break
			}
			factors = append(factors, fmt.Sprintf("Causal pattern %s → %s (%.0f%% confidence)", rel.CauseType, rel.EffectType, rel.Confidence))
		}
	}
	if in.maxHop >= 3 {
		factors = append(factors, fmt.Sprintf("Cascade reaches %d hops", in.maxHop))
	}
	return factors
}

var causeMitigations = map[string]string{
	"tariff_change": "Review tariff classifications and evaluate alternative sourcing origins",
	"fx_volatility": "Hedge currency exposure on affected supplier contracts",
	"freight_surge": "Lock in freight rates or diversify shipping routes",
	"price_spike":   "Renegotiate supplier pricing or build buffer inventory",
}

func mitigations(likelihood float64, in inputs, temp *temporal.Analysis) []string {
	recs := []string{}
	if likelihood >= 70 {
		recs = append(recs, "Escalate to the compliance lead for immediate review")
	}
	if temp != nil {
		seen := make(map[string]bool)
		for _, rel := range temp.CausalRelationships {
			cause := string(rel.CauseType)
			if rec, ok := causeMitigations[cause]; ok && !seen[cause] {
				seen[cause] = true
				recs = append(recs, rec)
			}
		}
	}
	if in.maxHop >= 3 {
		recs = append(recs, "Monitor downstream alerts along the longest cascade path")
	}
	if in.topCentrality >= 0.5 {
		recs = append(recs, "Prioritize the most central alert in the network for resolution")
	}
	if len(recs) == 0 {
		recs = append(recs, "Continue routine monitoring")
	}
	return recs
}
