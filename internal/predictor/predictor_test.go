package predictor

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/multihop"
	"github.com/liamashdown/tradeintel/internal/network"
	"github.com/liamashdown/tradeintel/internal/risk"
	"github.com/liamashdown/tradeintel/internal/temporal"
)

type fakeSources struct {
	inter    *risk.Interconnection
	interErr error
	netm     *network.Metrics
	netmErr  error
	temp     *temporal.Analysis
	tempErr  error
	conns    []multihop.Connection
	connsErr error

	gotMaxHops int
}

func (f *fakeSources) LoadInterconnection(ctx context.Context, alertID string, windowDays int) (*risk.Interconnection, error) {
	return f.inter, f.interErr
}

func (f *fakeSources) LoadNetworkMetrics(ctx context.Context, alertID string, windowDays int) (*network.Metrics, error) {
	return f.netm, f.netmErr
}

func (f *fakeSources) LoadTemporal(ctx context.Context, alertID string, windowDays int) (*temporal.Analysis, error) {
	return f.temp, f.tempErr
}

func (f *fakeSources) LoadMultiHop(ctx context.Context, alertID string, maxHops, windowDays int) ([]multihop.Connection, error) {
	f.gotMaxHops = maxHops
	return f.conns, f.connsErr
}

func deterministic() config.PredictorConfig {
	cfg := config.DefaultAnalysis().Predictor
	cfg.Deterministic = true
	return cfg
}

func fullSources() *fakeSources {
	return &fakeSources{
		inter: &risk.Interconnection{AlertID: "seed", OverallRisk: 60, CascadingImpact: 40, RelatedAlerts: 4, TotalFactors: 6},
		netm: &network.Metrics{
			PageRank:      map[string]float64{"seed": 0.6, "b": 0.4},
			Betweenness:   map[string]float64{"seed": 1, "b": 0.5},
			CriticalPaths: []network.CriticalPath{{Source: "seed", Target: "b"}, {Source: "b", Target: "c"}},
		},
		temp: &temporal.Analysis{
			AlertID: "seed",
			LeadingIndicators: []temporal.Indicator{
				{AlertID: "p2", Type: anomaly.TypePriceSpike, DaysOffset: -5, Confidence: 70},
				{AlertID: "p1", Type: anomaly.TypePriceSpike, DaysOffset: -6, Confidence: 70},
				{AlertID: "t1", Type: anomaly.TypeTariffChange, DaysOffset: -10.04, Confidence: 65},
			},
			LaggingIndicators: []temporal.Indicator{{AlertID: "f1", DaysOffset: 2, Confidence: 65}},
			CausalRelationships: []temporal.CausalRelationship{
				{CauseType: anomaly.TypeTariffChange, EffectType: anomaly.TypePriceSpike, Confidence: 90, Evidence: 4},
			},
		},
		conns: []multihop.Connection{
			{Path: []string{"seed", "b", "c", "d"}, Hops: 3, CompoundRisk: 100},
			{Path: []string{"seed", "b", "c"}, Hops: 2, CompoundRisk: 90},
		},
	}
}

func TestPredict(t *testing.T) {
	src := fullSources()
	p := New(src, deterministic(), nil, logrus.New())

	got := p.Predict(context.Background(), "seed", 30)
	require.NotNil(t, got)
	assert.False(t, got.Degraded)
	assert.Equal(t, 3, src.gotMaxHops)

	// 18 + 10 + 15 + 2 + 3 + 3 + 5
	assert.InDelta(t, 56, got.LikelihoodScore, 1e-9)
	// 40 + 60*0.2
	assert.InDelta(t, 52, got.PredictedImpact, 1e-9)
	assert.Equal(t, 14, got.TimeToCascadeDays)
	// 6 factors + 3 leading + 1 lagging + 1 causal + 2 paths
	assert.Equal(t, Interval{Lower: 60, Upper: 90}, got.ConfidenceInterval)

	require.Len(t, got.SimilarHistoricalCases, 3)
	assert.Equal(t, HistoricalCase{AlertID: "t1", Type: "tariff_change", DaysBefore: 10, Similarity: 65}, got.SimilarHistoricalCases[2])

	assert.Equal(t, []string{
		"High composite risk score (60)",
		"Alert network has a central hub (betweenness 1.00, top PageRank 0.60)",
		"3 leading indicators observed",
		"Causal pattern tariff_change → price_spike (90% confidence)",
		"Cascade reaches 3 hops",
	}, got.RiskFactors)
	assert.Equal(t, []string{
		"Review tariff classifications and evaluate alternative sourcing origins",
		"Monitor downstream alerts along the longest cascade path",
		"Prioritize the most central alert in the network for resolution",
	}, got.MitigationRecommendations)
}

func TestPredictDegraded(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*fakeSources)
	}{
		{"missing interconnection", func(f *fakeSources) { f.inter = nil }},
		{"interconnection error", func(f *fakeSources) { f.inter, f.interErr = nil, errors.New("store down") }},
		{"missing network metrics", func(f *fakeSources) { f.netm = nil }},
		{"network metrics error", func(f *fakeSources) { f.netmErr = ErrNoData }},
		{"everything failing", func(f *fakeSources) {
			f.inter, f.netm, f.temp, f.conns = nil, nil, nil, nil
			f.tempErr, f.connsErr = errors.New("a"), errors.New("b")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := fullSources()
			tt.mutate(src)
			got := New(src, deterministic(), nil, logrus.New()).Predict(context.Background(), "seed", 30)
			assert.Equal(t, Degraded("seed"), got)
		})
	}
}

func TestDegradedDefault(t *testing.T) {
	d := Degraded("x")
	assert.True(t, d.Degraded)
	assert.Equal(t, 50.0, d.LikelihoodScore)
	assert.Equal(t, 50.0, d.PredictedImpact)
	assert.Equal(t, 30, d.TimeToCascadeDays)
	assert.Equal(t, Interval{Lower: 30, Upper: 70}, d.ConfidenceInterval)
}

func TestPredictOptionalSourcesFailing(t *testing.T) {
	src := fullSources()
	src.temp, src.tempErr = nil, errors.New("timeout")
	src.conns, src.connsErr = nil, errors.New("timeout")

	got := New(src, deterministic(), nil, logrus.New()).Predict(context.Background(), "seed", 30)
	require.NotNil(t, got)
	assert.False(t, got.Degraded)
	// 18 + 10 + 15 + 2
	assert.InDelta(t, 45, got.LikelihoodScore, 1e-9)
	assert.Empty(t, got.SimilarHistoricalCases)
	// 6 factors only
	assert.Equal(t, Interval{Lower: 40, Upper: 80}, got.ConfidenceInterval)
}

func TestPredictStaysInRange(t *testing.T) {
	values := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1e12, 1e12, 0}
	for _, base := range values {
		for _, impact := range values {
			src := fullSources()
			src.inter.OverallRisk = base
			src.inter.CascadingImpact = impact
			src.conns[0].CompoundRisk = impact

			got := New(src, deterministic(), nil, logrus.New()).Predict(context.Background(), "seed", 30)
			for _, v := range []float64{got.LikelihoodScore, got.PredictedImpact} {
				assert.False(t, math.IsNaN(v))
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 100.0)
			}
			assert.Greater(t, got.TimeToCascadeDays, 0)
		}
	}
}

func TestTimeRange(t *testing.T) {
	tests := []struct {
		name   string
		in     inputs
		lo, hi int
	}{
		{"critical", inputs{baseRisk: 80}, 1, 8},
		{"high", inputs{baseRisk: 65}, 7, 21},
		{"medium", inputs{baseRisk: 40}, 14, 44},
		{"causal evidence", inputs{baseRisk: 10, causal: 3}, 21, 45},
		{"many related", inputs{baseRisk: 10, relatedAlerts: 10}, 21, 45},
		{"quiet", inputs{baseRisk: 10, causal: 2, relatedAlerts: 9}, 30, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := timeRange(tt.in)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)

			p := New(nil, config.DefaultAnalysis().Predictor, rand.New(rand.NewSource(7)), logrus.New())
			for i := 0; i < 200; i++ {
				d := p.timeToCascade(tt.in)
				assert.GreaterOrEqual(t, d, tt.lo)
				assert.LessOrEqual(t, d, tt.hi)
			}

			det := New(nil, deterministic(), nil, logrus.New())
			assert.Equal(t, (tt.lo+tt.hi)/2, det.timeToCascade(tt.in))
		})
	}
}

func TestSeededDrawsRepeat(t *testing.T) {
	in := inputs{baseRisk: 50}
	a := New(nil, config.DefaultAnalysis().Predictor, rand.New(rand.NewSource(42)), logrus.New())
	b := New(nil, config.DefaultAnalysis().Predictor, rand.New(rand.NewSource(42)), logrus.New())
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.timeToCascade(in), b.timeToCascade(in))
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		evidence int
		want     Interval
	}{
		{0, Interval{20, 60}},
		{4, Interval{20, 60}},
		{5, Interval{40, 80}},
		{10, Interval{60, 90}},
		{19, Interval{60, 90}},
		{20, Interval{80, 100}},
		{500, Interval{80, 100}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Confidence(tt.evidence), "evidence %d", tt.evidence)
	}
}

func TestMitigationsFallback(t *testing.T) {
	assert.Equal(t, []string{"Continue routine monitoring"}, mitigations(10, inputs{}, nil))

	recs := mitigations(85, inputs{}, nil)
	assert.Equal(t, []string{"Escalate to the compliance lead for immediate review"}, recs)
}
