package processor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/cache"
	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/correlation"
	"github.com/liamashdown/tradeintel/internal/graph"
	"github.com/liamashdown/tradeintel/internal/metrics"
	"github.com/liamashdown/tradeintel/internal/multihop"
	"github.com/liamashdown/tradeintel/internal/network"
	"github.com/liamashdown/tradeintel/internal/predictor"
	"github.com/liamashdown/tradeintel/internal/risk"
	"github.com/liamashdown/tradeintel/internal/temporal"
)

// Cache key operations. Per-alert keys start with op:alertID: so they can be
// invalidated by prefix.
const (
	opGraph          = "graph"
	opNetwork        = "network"
	opNetworkMetrics = "network_metrics"
	opCorrelations   = "correlations"
	opMultiHop       = "multihop"
	opTransitive     = "transitive"
	opTemporal       = "temporal"
	opRiskScores     = "risk_scores"
	opInterconnect   = "interconnection"
	opPrediction     = "prediction"
)

var alertOps = []string{opGraph, opNetworkMetrics, opMultiHop, opTemporal, opInterconnect, opPrediction}

// Global results that any alert change can affect
var sharedOps = []string{opNetwork, opRiskScores, opTransitive}

// NetworkReport is the full alert network with its metrics
type NetworkReport struct {
	Graph   *graph.NetworkGraph `json:"graph"`
	Metrics *network.Metrics    `json:"metrics"`
}

// Processor wires the store, the cache and every analyzer. Each entry point is
// memoized in the cache under a key built from all of its inputs.
type Processor struct {
	cache *cache.Cache
	ttl   time.Duration
	log   *logrus.Logger

	builder     *graph.Builder
	network     *network.Analyzer
	correlation *correlation.Analyzer
	multihop    *multihop.Analyzer
	temporal    *temporal.Analyzer
	risk        *risk.Scorer
	predictor   *predictor.Predictor
}

// New creates a new processor. rng drives the time-to-cascade draw; nil seeds one
// from the wall clock.
func New(
	cfg *config.Config,
	store anomaly.Store,
	c *cache.Cache,
	clk clock.Clock,
	rng *rand.Rand,
	log *logrus.Logger,
) *Processor {
	loader := graph.NewLoader(store, clk, log)
	a := cfg.Analysis

	p := &Processor{
		cache:       c,
		ttl:         cfg.CacheTTL,
		log:         log,
		builder:     graph.NewBuilder(loader, a.Graph, log),
		network:     network.NewAnalyzer(a.Network),
		correlation: correlation.NewAnalyzer(store, a.Correlation, clk, log),
		multihop:    multihop.NewAnalyzer(loader, a.MultiHop, a.Graph, log),
		temporal:    temporal.NewAnalyzer(loader, a.Temporal, log),
		risk:        risk.NewScorer(store, a.Risk, log),
	}
	p.predictor = predictor.New(p, a.Predictor, rng, log)
	return p
}

// analyze runs compute through the cache. keep decides whether a result is worth
// caching; insufficient-data answers are recomputed on the next call.
// Concurrent callers share one computation, so it runs on a context that outlives
// the first caller's cancellation. Store reads keep their own timeout.
func analyze[T any](ctx context.Context, p *Processor, op, key string, compute func(ctx context.Context) T, keep func(T) bool) T {
	shared := context.WithoutCancel(ctx)
	v, err := cache.Fetch(p.cache, key, p.ttl, func() (T, bool, error) {
		start := time.Now()
		result := compute(shared)
		ok := keep(result)
		metrics.RecordAnalysis(op, time.Since(start), !ok)
		return result, ok, nil
	})
	if err != nil {
		// compute never fails, but keep the answer well defined
		p.log.WithError(err).WithField("key", key).Error("Cached analysis failed")
	}
	return v
}

func notNil[T any](v *T) bool { return v != nil }

// AlertGraph builds the correlation graph around one alert
func (p *Processor) AlertGraph(ctx context.Context, alertID string, windowDays int) *graph.NetworkGraph {
	return analyze(ctx, p, opGraph, cache.Key(opGraph, alertID, windowDays), func(ctx context.Context) *graph.NetworkGraph {
		return p.builder.BuildForAlert(ctx, alertID, windowDays)
	}, notNil[graph.NetworkGraph])
}

// Network builds the graph over every alert in the window and analyzes it
func (p *Processor) Network(ctx context.Context, windowDays int) *NetworkReport {
	return analyze(ctx, p, opNetwork, cache.Key(opNetwork, windowDays), func(ctx context.Context) *NetworkReport {
		g := p.builder.BuildNetwork(ctx, windowDays)
		if g == nil {
			return nil
		}
		return &NetworkReport{Graph: g, Metrics: p.network.Analyze(g)}
	}, func(r *NetworkReport) bool {
		return r != nil && r.Graph.Len() > 0
	})
}

// NetworkMetrics analyzes the graph around one alert. Returns nil when the graph
// cannot be built.
func (p *Processor) NetworkMetrics(ctx context.Context, alertID string, windowDays int) *network.Metrics {
	return analyze(ctx, p, opNetworkMetrics, cache.Key(opNetworkMetrics, alertID, windowDays), func(ctx context.Context) *network.Metrics {
		g := p.AlertGraph(ctx, alertID, windowDays)
		if g == nil {
			return nil
		}
		return p.network.Analyze(g)
	}, notNil[network.Metrics])
}

// Correlations compares product price series, optionally within one category
func (p *Processor) Correlations(ctx context.Context, category string, windowDays int) *correlation.Report {
	return analyze(ctx, p, opCorrelations, cache.Key(opCorrelations, category, windowDays), func(ctx context.Context) *correlation.Report {
		return p.correlation.Analyze(ctx, category, windowDays)
	}, func(r *correlation.Report) bool {
		return r != nil && len(r.ProductCorrelations) > 0
	})
}

// MultiHop enumerates cascade paths from one alert
func (p *Processor) MultiHop(ctx context.Context, alertID string, maxHops, windowDays int) []multihop.Connection {
	hops := p.multihop.Hops(maxHops)
	return analyze(ctx, p, opMultiHop, cache.Key(opMultiHop, alertID, hops, windowDays), func(ctx context.Context) []multihop.Connection {
		return p.multihop.Analyze(ctx, alertID, hops, windowDays)
	}, func(c []multihop.Connection) bool {
		return c != nil
	})
}

// TransitiveRisk finds the shortest connection between two alerts
func (p *Processor) TransitiveRisk(ctx context.Context, fromID, toID string, maxHops, windowDays int) *multihop.TransitiveRisk {
	hops := p.multihop.Hops(maxHops)
	return analyze(ctx, p, opTransitive, cache.Key(opTransitive, fromID, toID, hops, windowDays), func(ctx context.Context) *multihop.TransitiveRisk {
		return p.multihop.TransitiveRisk(ctx, fromID, toID, hops, windowDays)
	}, notNil[multihop.TransitiveRisk])
}

// Temporal runs the lead/lag, causal, seasonal and trend detectors around one alert
func (p *Processor) Temporal(ctx context.Context, alertID string, windowDays int) *temporal.Analysis {
	return analyze(ctx, p, opTemporal, cache.Key(opTemporal, alertID, windowDays), func(ctx context.Context) *temporal.Analysis {
		return p.temporal.Analyze(ctx, alertID, windowDays)
	}, notNil[temporal.Analysis])
}

// RiskScores ranks every active alert
func (p *Processor) RiskScores(ctx context.Context) []risk.Score {
	return analyze(ctx, p, opRiskScores, cache.Key(opRiskScores, "active"), func(ctx context.Context) []risk.Score {
		return p.risk.ScoreActive(ctx)
	}, func(s []risk.Score) bool {
		return len(s) > 0
	})
}

// Interconnection scores one alert together with its graph neighbourhood
func (p *Processor) Interconnection(ctx context.Context, alertID string, windowDays int) *risk.Interconnection {
	return analyze(ctx, p, opInterconnect, cache.Key(opInterconnect, alertID, windowDays), func(ctx context.Context) *risk.Interconnection {
		return p.risk.Interconnect(ctx, alertID, p.AlertGraph(ctx, alertID, windowDays))
	}, notNil[risk.Interconnection])
}

// Predict estimates the cascade likelihood, impact and timing for one alert.
// Degraded answers are not cached.
func (p *Processor) Predict(ctx context.Context, alertID string, windowDays int) *predictor.CascadePrediction {
	return analyze(ctx, p, opPrediction, cache.Key(opPrediction, alertID, windowDays), func(ctx context.Context) *predictor.CascadePrediction {
		return p.predictor.Predict(ctx, alertID, windowDays)
	}, func(c *predictor.CascadePrediction) bool {
		return c != nil && !c.Degraded
	})
}

// InvalidateAlert drops every cached result that depends on the alert, including
// the window-wide results. Returns the number of entries removed.
func (p *Processor) InvalidateAlert(alertID string) int {
	removed := 0
	for _, op := range alertOps {
		removed += p.cache.Invalidate(cache.Key(op, alertID) + ":")
	}
	for _, op := range sharedOps {
		removed += p.cache.Invalidate(op + ":")
	}

	p.log.WithFields(logrus.Fields{
		"alert_id": alertID,
		"removed":  removed,
	}).Info("Invalidated cached analyses")

	return removed
}

// InvalidateAll clears the analysis cache
func (p *Processor) InvalidateAll() int {
	removed := p.cache.Invalidate("")
	p.log.WithField("removed", removed).Info("Cleared analysis cache")
	return removed
}

// LoadInterconnection implements predictor.Sources
func (p *Processor) LoadInterconnection(ctx context.Context, alertID string, windowDays int) (*risk.Interconnection, error) {
	if v := p.Interconnection(ctx, alertID, windowDays); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("interconnection for alert %s: %w", alertID, predictor.ErrNoData)
}

// LoadNetworkMetrics implements predictor.Sources
func (p *Processor) LoadNetworkMetrics(ctx context.Context, alertID string, windowDays int) (*network.Metrics, error) {
	if v := p.NetworkMetrics(ctx, alertID, windowDays); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("network metrics for alert %s: %w", alertID, predictor.ErrNoData)
}

// LoadTemporal implements predictor.Sources
func (p *Processor) LoadTemporal(ctx context.Context, alertID string, windowDays int) (*temporal.Analysis, error) {
	if v := p.Temporal(ctx, alertID, windowDays); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("temporal analysis for alert %s: %w", alertID, predictor.ErrNoData)
}

// LoadMultiHop implements predictor.Sources
func (p *Processor) LoadMultiHop(ctx context.Context, alertID string, maxHops, windowDays int) ([]multihop.Connection, error) {
	if v := p.MultiHop(ctx, alertID, maxHops, windowDays); v != nil {
		return v, nil
	}
	return nil, fmt.Errorf("multi-hop connections for alert %s: %w", alertID, predictor.ErrNoData)
}
