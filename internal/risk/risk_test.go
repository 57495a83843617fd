package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/config"
	"github.com/liamashdown/tradeintel/internal/graph"
	"github.com/liamashdown/tradeintel/internal/storage"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newScorer(store anomaly.Store) *Scorer {
	return NewScorer(store, config.DefaultAnalysis().Risk, logrus.New())
}

func alertWith(id string, t anomaly.Type, product string, details anomaly.Details) anomaly.Alert {
	return anomaly.Alert{
		ID:        id,
		Status:    anomaly.StatusNew,
		CreatedAt: now,
		Anomaly: &anomaly.Anomaly{
			ID:         "an-" + id,
			Type:       t,
			Severity:   anomaly.SeverityHigh,
			ProductID:  product,
			DetectedAt: now,
			Details:    details,
		},
	}
}

func TestBreakdown(t *testing.T) {
	s := newScorer(storage.NewMemory())
	steel := &anomaly.Product{ID: "p1", Category: "Steel & Metals"}
	food := &anomaly.Product{ID: "p2", Category: "Food"}

	tests := []struct {
		name    string
		typ     anomaly.Type
		details anomaly.Details
		product *anomaly.Product
		want    Breakdown
	}{
		{
			name:    "price spike halves percentage",
			typ:     anomaly.TypePriceSpike,
			details: anomaly.PriceSpikeDetails{PercentageChange: anomaly.Float(60)},
			want:    Breakdown{PriceDeviation: 30},
		},
		{
			name:    "price drop counts by magnitude",
			typ:     anomaly.TypePriceSpike,
			details: anomaly.PriceSpikeDetails{PercentageChange: anomaly.Float(-60)},
			want:    Breakdown{PriceDeviation: 30},
		},
		{
			name:    "tariff change direct and capped",
			typ:     anomaly.TypeTariffChange,
			details: anomaly.TariffChangeDetails{PercentageChange: anomaly.Float(250)},
			want:    Breakdown{PriceDeviation: 100},
		},
		{
			name:    "freight surge has no price deviation",
			typ:     anomaly.TypeFreightSurge,
			details: anomaly.FreightSurgeDetails{PercentageChange: anomaly.Float(80)},
			want:    Breakdown{},
		},
		{
			name:    "fx volatility",
			typ:     anomaly.TypeFXVolatility,
			details: anomaly.FXVolatilityDetails{Volatility: anomaly.Float(4.5)},
			want:    Breakdown{FXExposure: 45},
		},
		{
			name:    "fx currency risk",
			typ:     anomaly.TypeFXVolatility,
			details: anomaly.FXVolatilityDetails{CurrencyRisk: anomaly.Float(3)},
			want:    Breakdown{FXExposure: 60},
		},
		{
			name: "common fields",
			typ:  anomaly.TypeFreightSurge,
			details: anomaly.FreightSurgeDetails{CommonDetails: anomaly.CommonDetails{
				VolumeSurge:     anomaly.Float(5),
				ZScore:          anomaly.Float(-2),
				DependencyCount: anomaly.Int(4),
			}},
			want: Breakdown{VolumeSurge: 50, SupplyChain: 20, HistoricalVolatility: 30},
		},
		{
			name: "sensitive category bonus",
			typ:  anomaly.TypeFreightSurge,
			details: anomaly.FreightSurgeDetails{CommonDetails: anomaly.CommonDetails{
				DependencyCount: anomaly.Int(4),
			}},
			product: steel,
			want:    Breakdown{SupplyChain: 40},
		},
		{
			name:    "other category no bonus",
			typ:     anomaly.TypeFreightSurge,
			details: anomaly.FreightSurgeDetails{},
			product: food,
			want:    Breakdown{},
		},
		{
			name:    "unknown type uses common fields",
			typ:     "quota_breach",
			details: anomaly.GenericDetails{AnomalyType: "quota_breach", CommonDetails: anomaly.CommonDetails{ZScore: anomaly.Float(3)}},
			want:    Breakdown{HistoricalVolatility: 45},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			an := &anomaly.Anomaly{Type: tt.typ, Details: tt.details}
			assert.Equal(t, tt.want, s.Breakdown(an, tt.product))
		})
	}
}

func TestScoresStayInRangeForAdversarialDetails(t *testing.T) {
	s := newScorer(storage.NewMemory())
	values := []float64{math.NaN(), math.Inf(1), math.Inf(-1), -1e308, 1e308, -5, 0, 7.5}
	counts := []int{math.MinInt, -3, 0, 12, math.MaxInt}

	for _, v := range values {
		for _, c := range counts {
			common := anomaly.CommonDetails{VolumeSurge: anomaly.Float(v), ZScore: anomaly.Float(v), DependencyCount: anomaly.Int(c)}
			for _, d := range []anomaly.Details{
				anomaly.PriceSpikeDetails{CommonDetails: common, PercentageChange: anomaly.Float(v)},
				anomaly.TariffChangeDetails{CommonDetails: common, PercentageChange: anomaly.Float(v)},
				anomaly.FXVolatilityDetails{CommonDetails: common, Volatility: anomaly.Float(v), CurrencyRisk: anomaly.Float(v)},
			} {
				score := s.ScoreAlert(alertWith("a", d.Kind(), "", d), &anomaly.Product{Category: "Electronics"})
				name := fmt.Sprintf("%s v=%g c=%d", d.Kind(), v, c)
				inRange(t, score.CompositeRiskScore, name)
				b := score.RiskBreakdown
				for _, sub := range []float64{b.PriceDeviation, b.VolumeSurge, b.FXExposure, b.SupplyChain, b.HistoricalVolatility} {
					inRange(t, sub, name)
				}
			}
		}
	}
}

func TestScoresStayInRangeForStoredDetails(t *testing.T) {
	s := newScorer(storage.NewMemory())
	payloads := []string{
		`{"dependency_count": 3.0, "percentage_change": 1e400}`,
		`{"dependency_count": 1e40, "z_score": "2.5"}`,
		`{"dependency_count": -1e40, "volume_surge": "-1e400"}`,
		`{"volatility": "NaN", "currency_risk": "Infinity", "percentage_change": "-Inf"}`,
	}
	types := []anomaly.Type{anomaly.TypePriceSpike, anomaly.TypeTariffChange, anomaly.TypeFXVolatility, anomaly.Type("quota_breach")}

	for _, raw := range payloads {
		for _, typ := range types {
			d, err := anomaly.DecodeDetails(typ, []byte(raw))
			require.NoError(t, err, raw)

			score := s.ScoreAlert(alertWith("a", typ, "", d), &anomaly.Product{Category: "Steel & Metals"})
			name := fmt.Sprintf("%s %s", typ, raw)
			inRange(t, score.CompositeRiskScore, name)
			b := score.RiskBreakdown
			for _, sub := range []float64{b.PriceDeviation, b.VolumeSurge, b.FXExposure, b.SupplyChain, b.HistoricalVolatility} {
				inRange(t, sub, name)
			}
		}
	}
}

func inRange(t *testing.T, v float64, name string) {
	t.Helper()
	assert.False(t, math.IsNaN(v), name)
	assert.GreaterOrEqual(t, v, 0.0, name)
	assert.LessOrEqual(t, v, 100.0, name)
}

func TestScoreAlert(t *testing.T) {
	s := newScorer(storage.NewMemory())
	details := anomaly.TariffChangeDetails{
		CommonDetails: anomaly.CommonDetails{
			VolumeSurge:     anomaly.Float(6),
			ZScore:          anomaly.Float(3),
			DependencyCount: anomaly.Int(10),
		},
		PercentageChange: anomaly.Float(80),
	}
	score := s.ScoreAlert(alertWith("a1", anomaly.TypeTariffChange, "p1", details), &anomaly.Product{Category: "Electronics"})

	// 80*0.30 + 60*0.20 + 0*0.15 + 70*0.20 + 45*0.15 = 56.75
	assert.Equal(t, 57.0, score.CompositeRiskScore)
	assert.Equal(t, LevelHigh, score.RiskLevel)
	assert.Equal(t, "an-a1", score.AnomalyID)
	assert.Equal(t, "Price deviation · Volume surge · Supply chain risk · Historical volatility", score.PrioritizationReason)
}

func TestScoreAlertWithoutSignals(t *testing.T) {
	s := newScorer(storage.NewMemory())
	score := s.ScoreAlert(alertWith("a1", anomaly.TypeFreightSurge, "", anomaly.FreightSurgeDetails{}), nil)
	assert.Equal(t, 0.0, score.CompositeRiskScore)
	assert.Equal(t, LevelLow, score.RiskLevel)
	assert.Equal(t, "Baseline monitoring", score.PrioritizationReason)

	bare := s.ScoreAlert(anomaly.Alert{ID: "bare"}, nil)
	assert.Equal(t, LevelLow, bare.RiskLevel)
}

func TestLevel(t *testing.T) {
	s := newScorer(storage.NewMemory())
	tests := []struct {
		score float64
		want  string
	}{
		{100, LevelCritical},
		{70, LevelCritical},
		{69, LevelHigh},
		{50, LevelHigh},
		{49, LevelMedium},
		{30, LevelMedium},
		{29, LevelLow},
		{0, LevelLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.Level(tt.score), "score %v", tt.score)
	}
}

func TestScoreActiveRanking(t *testing.T) {
	store := storage.NewMemory()
	store.AddProducts(anomaly.Product{ID: "steel", Category: "Steel & Metals"})
	for i := 0; i < 25; i++ {
		d := anomaly.PriceSpikeDetails{
			CommonDetails:    anomaly.CommonDetails{VolumeSurge: anomaly.Float(float64(i % 7))},
			PercentageChange: anomaly.Float(float64(i * 9 % 100)),
		}
		a := alertWith(fmt.Sprintf("a%02d", i), anomaly.TypePriceSpike, "steel", d)
		if i%5 == 0 {
			a.Status = anomaly.StatusResolved
		}
		store.AddAlerts(a)
	}

	scores := newScorer(store).ScoreActive(context.Background())
	require.Len(t, scores, 20)
	for i, s := range scores {
		assert.Equal(t, i+1, s.Ranking)
		assert.NotEqual(t, "a00", s.AlertID)
		// Steel carries the category bonus
		assert.Equal(t, 20.0, s.RiskBreakdown.SupplyChain)
		if i > 0 {
			assert.GreaterOrEqual(t, scores[i-1].CompositeRiskScore, s.CompositeRiskScore)
		}
	}
}

func TestScoreActiveStoreFailure(t *testing.T) {
	store := storage.NewMemory()
	store.Err = errors.New("down")
	scores := newScorer(store).ScoreActive(context.Background())
	require.NotNil(t, scores)
	assert.Empty(t, scores)
}

func TestInterconnect(t *testing.T) {
	store := storage.NewMemory()
	seed := alertWith("seed", anomaly.TypeTariffChange, "p1", anomaly.TariffChangeDetails{PercentageChange: anomaly.Float(50)})
	store.AddAlerts(seed)

	g := graph.New()
	g.AddNode(graph.Node{ID: "seed", Severity: anomaly.SeverityHigh})
	g.AddNode(graph.Node{ID: "n1", Severity: anomaly.SeverityCritical})
	g.AddNode(graph.Node{ID: "n2", Severity: anomaly.SeverityLow})
	g.Connect("seed", "n1", 0.5, graph.EdgePattern)
	g.Connect("seed", "n2", 1.0, graph.EdgeProduct)

	s := newScorer(store)
	got := s.Interconnect(context.Background(), "seed", g)
	require.NotNil(t, got)

	// 50*0.30 = 15
	assert.Equal(t, 15.0, got.OverallRisk)
	// 0.5*40 + 1.0*10
	assert.InDelta(t, 30, got.CascadingImpact, 1e-9)
	assert.Equal(t, 2, got.RelatedAlerts)
	// two neighbours plus the price deviation sub-score above 40
	assert.Equal(t, 3, got.TotalFactors)

	noGraph := s.Interconnect(context.Background(), "seed", nil)
	require.NotNil(t, noGraph)
	assert.Equal(t, 0.0, noGraph.CascadingImpact)
	assert.Equal(t, 0, noGraph.RelatedAlerts)

	assert.Nil(t, s.Interconnect(context.Background(), "missing", g))
}

func TestInterconnectImpactCapped(t *testing.T) {
	store := storage.NewMemory()
	store.AddAlerts(alertWith("seed", anomaly.TypePriceSpike, "", anomaly.PriceSpikeDetails{}))

	g := graph.New()
	g.AddNode(graph.Node{ID: "seed"})
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("n%d", i)
		g.AddNode(graph.Node{ID: id, Severity: anomaly.SeverityCritical})
		g.Connect("seed", id, 1, graph.EdgePattern)
	}

	got := newScorer(store).Interconnect(context.Background(), "seed", g)
	require.NotNil(t, got)
	assert.Equal(t, 100.0, got.CascadingImpact)
}
