package graph

import (
	"github.com/liamashdown/tradeintel/internal/anomaly"
	"github.com/liamashdown/tradeintel/internal/config"
)

type typePair struct {
	a, b anomaly.Type
}

// Complementary anomaly types that tend to occur together. Symmetric.
var patternBonus = map[typePair]float64{
	{anomaly.TypePriceSpike, anomaly.TypeFreightSurge}:   0.85,
	{anomaly.TypeTariffChange, anomaly.TypePriceSpike}:   0.80,
	{anomaly.TypeFXVolatility, anomaly.TypePriceSpike}:   0.70,
	{anomaly.TypeTariffChange, anomaly.TypeFreightSurge}: 0.60,
	{anomaly.TypeFXVolatility, anomaly.TypeTariffChange}: 0.55,
}

// PatternBonus returns the complementary-type bonus for two anomaly types, in either order
func PatternBonus(a, b anomaly.Type) float64 {
	if v, ok := patternBonus[typePair{a, b}]; ok {
		return v
	}
	return patternBonus[typePair{b, a}]
}

// ConnectionStrength scores how related two alerts are, in [0,1], and names the
// dominant reason for the connection.
func ConnectionStrength(cfg config.GraphConfig, a, b Node) (float64, EdgeType) {
	strength := 0.0
	edgeType := EdgeTemporal

	sameProduct := a.Metadata.ProductID != "" && a.Metadata.ProductID == b.Metadata.ProductID
	if sameProduct {
		strength += cfg.SameProductBonus
	}

	bonus := 0.0
	if a.Type == b.Type {
		strength += cfg.SameTypeBonus
	} else {
		bonus = PatternBonus(a.Type, b.Type)
		strength += bonus
	}

	days := anomaly.DaysBetween(a.Timestamp, b.Timestamp)
	if days <= cfg.TimeDecayDays {
		strength += cfg.TimeDecayBonus * (1 - days/cfg.TimeDecayDays)
	}

	switch {
	case sameProduct:
		edgeType = EdgeProduct
	case bonus > 0:
		edgeType = EdgePattern
	case a.Type == b.Type:
		edgeType = EdgeSameType
	}

	if strength > 1 {
		strength = 1
	}
	return strength, edgeType
}
