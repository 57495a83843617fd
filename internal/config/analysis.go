package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Analysis groups every tunable threshold and weight used by the analyzers
type Analysis struct {
	Graph       GraphConfig       `mapstructure:"graph"`
	Network     NetworkConfig     `mapstructure:"network"`
	Correlation CorrelationConfig `mapstructure:"correlation"`
	MultiHop    MultiHopConfig    `mapstructure:"multihop"`
	Temporal    TemporalConfig    `mapstructure:"temporal"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Predictor   PredictorConfig   `mapstructure:"predictor"`
}

// GraphConfig tunes the connection-strength heuristic
type GraphConfig struct {
	FetchLimit            int     `mapstructure:"fetch_limit"`
	SignificanceThreshold float64 `mapstructure:"significance_threshold"`
	SameProductBonus      float64 `mapstructure:"same_product_bonus"`
	SameTypeBonus         float64 `mapstructure:"same_type_bonus"`
	TimeDecayBonus        float64 `mapstructure:"time_decay_bonus"`
	TimeDecayDays         float64 `mapstructure:"time_decay_days"`
}

// NetworkConfig tunes PageRank, betweenness, community detection and critical paths
type NetworkConfig struct {
	Damping          float64 `mapstructure:"damping"`
	MaxIterations    int     `mapstructure:"max_iterations"`
	Tolerance        float64 `mapstructure:"tolerance"`
	MaxPathsPerPair  int     `mapstructure:"max_paths_per_pair"`
	CommunityRounds  int     `mapstructure:"community_rounds"`
	MaxCommunities   int     `mapstructure:"max_communities"`
	CriticalTopNodes int     `mapstructure:"critical_top_nodes"`
	MaxCriticalPaths int     `mapstructure:"max_critical_paths"`
}

// CorrelationConfig tunes the product price correlation analysis
type CorrelationConfig struct {
	Threshold         float64 `mapstructure:"threshold"`
	ModerateThreshold float64 `mapstructure:"moderate_threshold"`
	StrongThreshold   float64 `mapstructure:"strong_threshold"`
	MinSamples        int     `mapstructure:"min_samples"`
	ShipmentLimit     int     `mapstructure:"shipment_limit"`
	TrendThreshold    float64 `mapstructure:"trend_threshold"`
}

// MultiHopConfig tunes cascade path enumeration
type MultiHopConfig struct {
	DefaultMaxHops int `mapstructure:"default_max_hops"`
	MaxHopsLimit   int `mapstructure:"max_hops_limit"`
	MaxResults     int `mapstructure:"max_results"`
	MaxExplored    int `mapstructure:"max_explored"`
	FetchLimit     int `mapstructure:"fetch_limit"`
}

// TemporalConfig tunes lead/lag, causal, seasonal and trend detection
type TemporalConfig struct {
	FetchLimit          int       `mapstructure:"fetch_limit"`
	LeadLagWindowDays   float64   `mapstructure:"lead_lag_window_days"`
	IndicatorThreshold  float64   `mapstructure:"indicator_threshold"`
	MaxIndicators       int       `mapstructure:"max_indicators"`
	CausalBuckets       int       `mapstructure:"causal_buckets"`
	CausalThreshold     float64   `mapstructure:"causal_threshold"`
	MaxCausal           int       `mapstructure:"max_causal"`
	SeasonalPeriods     []float64 `mapstructure:"seasonal_periods"`
	SeasonalTolerance   float64   `mapstructure:"seasonal_tolerance"`
	SeasonalMinFraction float64   `mapstructure:"seasonal_min_fraction"`
	StableSlope         float64   `mapstructure:"stable_slope"`
}

// RiskConfig holds composite weights and level thresholds
type RiskConfig struct {
	FetchLimit           int      `mapstructure:"fetch_limit"`
	Workers              int      `mapstructure:"workers"`
	PriceWeight          float64  `mapstructure:"price_weight"`
	VolumeWeight         float64  `mapstructure:"volume_weight"`
	FXWeight             float64  `mapstructure:"fx_weight"`
	SupplyChainWeight    float64  `mapstructure:"supply_chain_weight"`
	VolatilityWeight     float64  `mapstructure:"volatility_weight"`
	CriticalLevel        float64  `mapstructure:"critical_level"`
	HighLevel            float64  `mapstructure:"high_level"`
	MediumLevel          float64  `mapstructure:"medium_level"`
	ReasonThreshold      float64  `mapstructure:"reason_threshold"`
	SensitiveCategories  []string `mapstructure:"sensitive_categories"`
	SensitiveCategoryAdd float64  `mapstructure:"sensitive_category_add"`
}

// PredictorConfig holds the cascade likelihood weights
type PredictorConfig struct {
	BaseRiskWeight      float64 `mapstructure:"base_risk_weight"`
	CascadeImpactWeight float64 `mapstructure:"cascade_impact_weight"`
	CentralityWeight    float64 `mapstructure:"centrality_weight"`
	CriticalPathWeight  float64 `mapstructure:"critical_path_weight"`
	LeadingWeight       float64 `mapstructure:"leading_weight"`
	HopWeight           float64 `mapstructure:"hop_weight"`
	CompoundRiskWeight  float64 `mapstructure:"compound_risk_weight"`
	ImpactBaseRiskShare float64 `mapstructure:"impact_base_risk_share"`
	MaxHops             int     `mapstructure:"max_hops"`
	Deterministic       bool    `mapstructure:"deterministic"`
}

// DefaultAnalysis returns the production thresholds
func DefaultAnalysis() Analysis {
	return Analysis{
		Graph: GraphConfig{
			FetchLimit:            500,
			SignificanceThreshold: 0.3,
			SameProductBonus:      0.5,
			SameTypeBonus:         0.3,
			TimeDecayBonus:        0.3,
			TimeDecayDays:         7,
		},
		Network: NetworkConfig{
			Damping:          0.85,
			MaxIterations:    50,
			Tolerance:        1e-4,
			MaxPathsPerPair:  5,
			CommunityRounds:  10,
			MaxCommunities:   10,
			CriticalTopNodes: 10,
			MaxCriticalPaths: 20,
		},
		Correlation: CorrelationConfig{
			Threshold:         0.3,
			ModerateThreshold: 0.5,
			StrongThreshold:   0.7,
			MinSamples:        3,
			ShipmentLimit:     5000,
			TrendThreshold:    0.3,
		},
		MultiHop: MultiHopConfig{
			DefaultMaxHops: 3,
			MaxHopsLimit:   6,
			MaxResults:     50,
			MaxExplored:    20000,
			FetchLimit:     500,
		},
		Temporal: TemporalConfig{
			FetchLimit:          500,
			LeadLagWindowDays:   90,
			IndicatorThreshold:  0.5,
			MaxIndicators:       10,
			CausalBuckets:       5,
			CausalThreshold:     0.6,
			MaxCausal:           15,
			SeasonalPeriods:     []float64{7, 30, 90},
			SeasonalTolerance:   0.3,
			SeasonalMinFraction: 0.3,
			StableSlope:         0.001,
		},
		Risk: RiskConfig{
			FetchLimit:           100,
			Workers:              8,
			PriceWeight:          0.30,
			VolumeWeight:         0.20,
			FXWeight:             0.15,
			SupplyChainWeight:    0.20,
			VolatilityWeight:     0.15,
			CriticalLevel:        70,
			HighLevel:            50,
			MediumLevel:          30,
			ReasonThreshold:      40,
			SensitiveCategories:  []string{"Steel & Metals", "Electronics"},
			SensitiveCategoryAdd: 20,
		},
		Predictor: PredictorConfig{
			BaseRiskWeight:      0.30,
			CascadeImpactWeight: 0.25,
			CentralityWeight:    0.15,
			CriticalPathWeight:  0.10,
			LeadingWeight:       0.10,
			HopWeight:           0.05,
			CompoundRiskWeight:  0.05,
			ImpactBaseRiskShare: 0.2,
			MaxHops:             3,
		},
	}
}

// LoadAnalysis returns DefaultAnalysis overlaid with the YAML file at path, if any.
// Keys missing from the file keep their defaults.
func LoadAnalysis(path string) (*Analysis, error) {
	defaults := DefaultAnalysis()
	if path == "" {
		return &defaults, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read analysis config: %w", err)
	}

	var analysis Analysis
	if err := v.Unmarshal(&analysis); err != nil {
		return nil, fmt.Errorf("unmarshal analysis config: %w", err)
	}

	return &analysis, nil
}

func setDefaults(v *viper.Viper, a Analysis) {
	sections := map[string]map[string]interface{}{}
	sections["graph"] = map[string]interface{}{
		"fetch_limit":            a.Graph.FetchLimit,
		"significance_threshold": a.Graph.SignificanceThreshold,
		"same_product_bonus":     a.Graph.SameProductBonus,
		"same_type_bonus":        a.Graph.SameTypeBonus,
		"time_decay_bonus":       a.Graph.TimeDecayBonus,
		"time_decay_days":        a.Graph.TimeDecayDays,
	}
	sections["network"] = map[string]interface{}{
		"damping":            a.Network.Damping,
		"max_iterations":     a.Network.MaxIterations,
		"tolerance":          a.Network.Tolerance,
		"max_paths_per_pair": a.Network.MaxPathsPerPair,
		"community_rounds":   a.Network.CommunityRounds,
		"max_communities":    a.Network.MaxCommunities,
		"critical_top_nodes": a.Network.CriticalTopNodes,
		"max_critical_paths": a.Network.MaxCriticalPaths,
	}
	sections["correlation"] = map[string]interface{}{
		"threshold":          a.Correlation.Threshold,
		"moderate_threshold": a.Correlation.ModerateThreshold,
		"strong_threshold":   a.Correlation.StrongThreshold,
		"min_samples":        a.Correlation.MinSamples,
		"shipment_limit":     a.Correlation.ShipmentLimit,
		"trend_threshold":    a.Correlation.TrendThreshold,
	}
	sections["multihop"] = map[string]interface{}{
		"default_max_hops": a.MultiHop.DefaultMaxHops,
		"max_hops_limit":   a.MultiHop.MaxHopsLimit,
		"max_results":      a.MultiHop.MaxResults,
		"max_explored":     a.MultiHop.MaxExplored,
		"fetch_limit":      a.MultiHop.FetchLimit,
	}
	sections["temporal"] = map[string]interface{}{
		"fetch_limit":           a.Temporal.FetchLimit,
		"lead_lag_window_days":  a.Temporal.LeadLagWindowDays,
		"indicator_threshold":   a.Temporal.IndicatorThreshold,
		"max_indicators":        a.Temporal.MaxIndicators,
		"causal_buckets":        a.Temporal.CausalBuckets,
		"causal_threshold":      a.Temporal.CausalThreshold,
		"max_causal":            a.Temporal.MaxCausal,
		"seasonal_periods":      a.Temporal.SeasonalPeriods,
		"seasonal_tolerance":    a.Temporal.SeasonalTolerance,
		"seasonal_min_fraction": a.Temporal.SeasonalMinFraction,
		"stable_slope":          a.Temporal.StableSlope,
	}
	sections["risk"] = map[string]interface{}{
		"fetch_limit":            a.Risk.FetchLimit,
		"workers":                a.Risk.Workers,
		"price_weight":           a.Risk.PriceWeight,
		"volume_weight":          a.Risk.VolumeWeight,
		"fx_weight":              a.Risk.FXWeight,
		"supply_chain_weight":    a.Risk.SupplyChainWeight,
		"volatility_weight":      a.Risk.VolatilityWeight,
		"critical_level":         a.Risk.CriticalLevel,
		"high_level":             a.Risk.HighLevel,
		"medium_level":           a.Risk.MediumLevel,
		"reason_threshold":       a.Risk.ReasonThreshold,
		"sensitive_categories":   a.Risk.SensitiveCategories,
		"sensitive_category_add": a.Risk.SensitiveCategoryAdd,
	}
	sections["predictor"] = map[string]interface{}{
		"base_risk_weight":       a.Predictor.BaseRiskWeight,
		"cascade_impact_weight":  a.Predictor.CascadeImpactWeight,
		"centrality_weight":      a.Predictor.CentralityWeight,
		"critical_path_weight":   a.Predictor.CriticalPathWeight,
		"leading_weight":         a.Predictor.LeadingWeight,
		"hop_weight":             a.Predictor.HopWeight,
		"compound_risk_weight":   a.Predictor.CompoundRiskWeight,
		"impact_base_risk_share": a.Predictor.ImpactBaseRiskShare,
		"max_hops":               a.Predictor.MaxHops,
		"deterministic":          a.Predictor.Deterministic,
	}

	for section, keys := range sections {
		for key, value := range keys {
			v.SetDefault(section+"."+key, value)
		}
	}
}

// Validate rejects thresholds the analyzers cannot work with
func (a *Analysis) Validate() error {
	if a.Graph.FetchLimit <= 0 {
		return fmt.Errorf("graph.fetch_limit must be positive")
	}
	if a.Graph.SignificanceThreshold < 0 || a.Graph.SignificanceThreshold >= 1 {
		return fmt.Errorf("graph.significance_threshold must be in [0,1)")
	}
	if a.Graph.TimeDecayDays <= 0 {
		return fmt.Errorf("graph.time_decay_days must be positive")
	}
	if a.Network.Damping <= 0 || a.Network.Damping >= 1 {
		return fmt.Errorf("network.damping must be in (0,1)")
	}
	if a.Network.MaxIterations <= 0 {
		return fmt.Errorf("network.max_iterations must be positive")
	}
	if a.Network.MaxPathsPerPair <= 0 {
		return fmt.Errorf("network.max_paths_per_pair must be positive")
	}
	if a.Correlation.MinSamples < 2 {
		return fmt.Errorf("correlation.min_samples must be at least 2")
	}
	if a.MultiHop.DefaultMaxHops <= 0 || a.MultiHop.DefaultMaxHops > a.MultiHop.MaxHopsLimit {
		return fmt.Errorf("multihop.default_max_hops must be in [1,%d]", a.MultiHop.MaxHopsLimit)
	}
	if a.Temporal.CausalBuckets <= 0 {
		return fmt.Errorf("temporal.causal_buckets must be positive")
	}
	if len(a.Temporal.SeasonalPeriods) == 0 {
		return fmt.Errorf("temporal.seasonal_periods must not be empty")
	}
	if a.Risk.Workers <= 0 {
		return fmt.Errorf("risk.workers must be positive")
	}
	weights := a.Risk.PriceWeight + a.Risk.VolumeWeight + a.Risk.FXWeight + a.Risk.SupplyChainWeight + a.Risk.VolatilityWeight
	if weights <= 0 || weights > 1.0001 {
		return fmt.Errorf("risk weights must sum to a value in (0,1], got %.3f", weights)
	}
	if a.Predictor.MaxHops <= 0 {
		return fmt.Errorf("predictor.max_hops must be positive")
	}
	return nil
}
