package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/cache"
	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/correlation"
	"github.com/liamashdown/tradeintel/internal/graph"
	"github.com/liamashdown/tradeintel/internal/predictor"
	"github.com/liamashdown/tradeintel/internal/storage"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(d float64) time.Time {
	return now.Add(-time.Duration(d * float64(24*time.Hour)))
}

func newAlert(id string, t anomaly.Type, product string, days float64, details anomaly.Details) anomaly.Alert {
	ts := daysAgo(days)
	return anomaly.Alert{
		ID:        id,
		Status:    anomaly.StatusNew,
		CreatedAt: ts,
		Anomaly: &anomaly.Anomaly{
			ID:         "an-" + id,
			Type:       t,
			Severity:   anomaly.SeverityHigh,
			ProductID:  product,
			DetectedAt: ts,
			Details:    details,
		},
	}
}

type fixture struct {
	store *storage.Memory
	clock *clock.Mock
	cache *cache.Cache
	cfg   *config.Config
	proc  *Processor
}

func newFixture() *fixture {
	store := storage.NewMemory()
	store.AddProducts(
		anomaly.Product{ID: "p1", Name: "steel coil", Category: "Steel & Metals"},
		anomaly.Product{ID: "p2", Name: "scrap", Category: "Steel & Metals"},
		anomaly.Product{ID: "p3", Name: "copper wire", Category: "Electronics"},
	)

	resolved := newAlert("r1", anomaly.TypePriceSpike, "p2", 1, anomaly.PriceSpikeDetails{})
	resolved.Status = anomaly.StatusResolved
	store.AddAlerts(
		newAlert("seed", anomaly.TypeTariffChange, "p1", 1, anomaly.TariffChangeDetails{
			CommonDetails:    anomaly.CommonDetails{VolumeSurge: anomaly.Float(6)},
			PercentageChange: anomaly.Float(80),
		}),
		newAlert("a2", anomaly.TypePriceSpike, "p1", 2, anomaly.PriceSpikeDetails{PercentageChange: anomaly.Float(40)}),
		newAlert("a3", anomaly.TypeFreightSurge, "p2", 3, anomaly.FreightSurgeDetails{}),
		newAlert("a4", anomaly.TypeFXVolatility, "p3", 4, anomaly.FXVolatilityDetails{Volatility: anomaly.Float(3)}),
		newAlert("old", anomaly.TypePriceSpike, "p3", 60, anomaly.PriceSpikeDetails{}),
		resolved,
	)

	for i := 0; i < 5; i++ {
		store.AddShipments(
			anomaly.Shipment{ID: "s1", ProductID: "p1", UnitPrice: float64(100 + i*10), Quantity: 10, ShippedAt: daysAgo(float64(10 - i))},
			anomaly.Shipment{ID: "s2", ProductID: "p2", UnitPrice: float64(100 - i*10), Quantity: float64(5 + i), ShippedAt: daysAgo(float64(10 - i))},
		)
	}

	clk := clock.NewMock()
	clk.Set(now)
	log := logrus.New()

	cfg := &config.Config{CacheTTL: 15 * time.Minute, Analysis: config.DefaultAnalysis()}
	cfg.Analysis.Predictor.Deterministic = true

	c := cache.New(clk, cfg.CacheTTL, log)
	return &fixture{
		store: store,
		clock: clk,
		cache: c,
		cfg:   cfg,
		proc:  New(cfg, store, c, clk, nil, log),
	}
}

func nodeIDs(f *fixture, id string, window int) []string {
	g := f.proc.AlertGraph(context.Background(), id, window)
	if g == nil {
		return nil
	}
	ids := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}

func TestAlertGraphCached(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.proc.AlertGraph(ctx, "seed", 30)
	require.NotNil(t, first)
	assert.Same(t, first, f.proc.AlertGraph(ctx, "seed", 30))

	ids := nodeIDs(f, "seed", 30)
	assert.Contains(t, ids, "seed")
	assert.Contains(t, ids, "a2")
	assert.NotContains(t, ids, "old")

	// The window is part of the key
	assert.Contains(t, nodeIDs(f, "seed", 90), "old")
}

func TestAlertGraphMissingSeedNotCached(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	assert.Nil(t, f.proc.AlertGraph(ctx, "late", 30))
	assert.False(t, f.cache.Has(cache.Key(opGraph, "late", 30)))

	f.store.AddAlerts(newAlert("late", anomaly.TypePriceSpike, "p1", 0.5, anomaly.PriceSpikeDetails{}))
	assert.NotNil(t, f.proc.AlertGraph(ctx, "late", 30))
}

func TestCacheExpiry(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	first := f.proc.AlertGraph(ctx, "seed", 30)
	f.clock.Add(f.cfg.CacheTTL)
	second := f.proc.AlertGraph(ctx, "seed", 30)
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
}

func TestInvalidateAlert(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.proc.AlertGraph(ctx, "seed", 30)
	f.proc.Temporal(ctx, "seed", 30)
	f.proc.AlertGraph(ctx, "a2", 30)
	f.proc.RiskScores(ctx)

	f.store.AddAlerts(newAlert("a5", anomaly.TypePriceSpike, "p1", 0.5, anomaly.PriceSpikeDetails{}))
	assert.NotContains(t, nodeIDs(f, "seed", 30), "a5")

	removed := f.proc.InvalidateAlert("seed")
	assert.Equal(t, 3, removed)
	assert.True(t, f.cache.Has(cache.Key(opGraph, "a2", 30)))
	assert.Contains(t, nodeIDs(f, "seed", 30), "a5")

	assert.Equal(t, f.cache.Len(), f.proc.InvalidateAll())
	assert.Equal(t, 0, f.cache.Len())
}

func TestNetwork(t *testing.T) {
	f := newFixture()
	report := f.proc.Network(context.Background(), 30)
	require.NotNil(t, report)

	// Resolved alerts stay in the network, the old one is outside the window
	assert.Equal(t, 5, report.Graph.Len())
	assert.Len(t, report.Metrics.PageRank, 5)
	sum := 0.0
	for _, v := range report.Metrics.PageRank {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}

func TestNetworkMetrics(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	m := f.proc.NetworkMetrics(ctx, "seed", 30)
	require.NotNil(t, m)
	assert.Contains(t, m.PageRank, "seed")
	assert.Equal(t, 1.0, m.MaxBetweenness())

	assert.Nil(t, f.proc.NetworkMetrics(ctx, "missing", 30))
}

func TestRiskScores(t *testing.T) {
	f := newFixture()
	scores := f.proc.RiskScores(context.Background())

	require.Len(t, scores, 5)
	assert.Equal(t, "seed", scores[0].AlertID)
	for i, s := range scores {
		assert.Equal(t, i+1, s.Ranking)
		assert.NotEqual(t, "r1", s.AlertID)
	}
}

func TestCorrelations(t *testing.T) {
	f := newFixture()
	report := f.proc.Correlations(context.Background(), "Steel & Metals", 30)
	require.NotNil(t, report)
	require.Len(t, report.ProductCorrelations, 1)

	r := report.ProductCorrelations[0]
	assert.Equal(t, "p1", r.ProductA)
	assert.Equal(t, "p2", r.ProductB)
	assert.InDelta(t, -1, r.CorrelationCoefficient, 1e-9)
	assert.Equal(t, correlation.TypeNegative, r.CorrelationType)

	// Another category shares nothing with the cached entry
	empty := f.proc.Correlations(context.Background(), "Electronics", 30)
	assert.Empty(t, empty.ProductCorrelations)
	assert.False(t, f.cache.Has(cache.Key(opCorrelations, "Electronics", 30)))
}

func TestMultiHopAndTransitive(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conns := f.proc.MultiHop(ctx, "seed", 0, 30)
	require.NotEmpty(t, conns)
	for _, c := range conns {
		assert.Equal(t, "seed", c.Path[0])
		assert.LessOrEqual(t, c.Hops, f.cfg.Analysis.MultiHop.DefaultMaxHops)
	}
	// Zero hops resolves to the default and shares its key
	assert.True(t, f.cache.Has(cache.Key(opMultiHop, "seed", 3, 30)))

	risk := f.proc.TransitiveRisk(ctx, "seed", "a3", 3, 30)
	require.NotNil(t, risk)
	assert.True(t, risk.Reachable)
	assert.Equal(t, "a3", risk.Path[len(risk.Path)-1])
}

func TestTemporal(t *testing.T) {
	f := newFixture()
	analysis := f.proc.Temporal(context.Background(), "seed", 30)
	require.NotNil(t, analysis)
	assert.Equal(t, "seed", analysis.AlertID)
	assert.NotEmpty(t, analysis.LeadingIndicators)
}

func TestPredict(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	got := f.proc.Predict(ctx, "seed", 30)
	require.NotNil(t, got)
	assert.False(t, got.Degraded)
	assert.GreaterOrEqual(t, got.LikelihoodScore, 0.0)
	assert.LessOrEqual(t, got.LikelihoodScore, 100.0)
	assert.Greater(t, got.TimeToCascadeDays, 0)
	assert.Same(t, got, f.proc.Predict(ctx, "seed", 30))

	// The predictor's inputs were cached along the way
	assert.True(t, f.cache.Has(cache.Key(opInterconnect, "seed", 30)))
	assert.True(t, f.cache.Has(cache.Key(opNetworkMetrics, "seed", 30)))
}

func TestPredictMissingAlertDegraded(t *testing.T) {
	f := newFixture()
	got := f.proc.Predict(context.Background(), "missing", 30)
	assert.Equal(t, predictor.Degraded("missing"), got)
	assert.False(t, f.cache.Has(cache.Key(opPrediction, "missing", 30)))
}

func TestPredictStoreDown(t *testing.T) {
	f := newFixture()
	f.store.Err = errors.New("connection refused")
	got := f.proc.Predict(context.Background(), "seed", 30)
	assert.True(t, got.Degraded)
}

func TestSourcesReportNoData(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.proc.LoadInterconnection(ctx, "missing", 30)
	assert.ErrorIs(t, err, predictor.ErrNoData)
	_, err = f.proc.LoadNetworkMetrics(ctx, "missing", 30)
	assert.ErrorIs(t, err, predictor.ErrNoData)
	_, err = f.proc.LoadTemporal(ctx, "missing", 30)
	assert.ErrorIs(t, err, predictor.ErrNoData)
	_, err = f.proc.LoadMultiHop(ctx, "missing", 3, 30)
	assert.ErrorIs(t, err, predictor.ErrNoData)

	inter, err := f.proc.LoadInterconnection(ctx, "seed", 30)
	require.NoError(t, err)
	assert.Equal(t, "seed", inter.AlertID)
}

// gatedStore holds the first alert lookup until released
type gatedStore struct {
	*storage.Memory
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) GetAlert(ctx context.Context, id string) (*anomaly.Alert, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.Memory.GetAlert(ctx, id)
}

func TestSharedAnalysisSurvivesCallerCancel(t *testing.T) {
	f := newFixture()
	store := &gatedStore{Memory: f.store, entered: make(chan struct{}), release: make(chan struct{})}
	proc := New(f.cfg, store, f.cache, f.clock, nil, logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan *graph.NetworkGraph, 1)
	go func() { first <- proc.AlertGraph(ctx, "seed", 30) }()

	<-store.entered
	cancel()

	second := make(chan *graph.NetworkGraph, 1)
	go func() { second <- proc.AlertGraph(context.Background(), "seed", 30) }()
	close(store.release)

	assert.NotNil(t, <-first)
	assert.NotNil(t, <-second)
	assert.True(t, f.cache.Has(cache.Key(opGraph, "seed", 30)))
}
