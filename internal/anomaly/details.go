package anomaly

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Details is the type-specific payload attached to an anomaly. Each anomaly type
// has its own variant; unknown types decode into GenericDetails.
type Details interface {
	Kind() Type
	Common() CommonDetails
}

// CommonDetails holds the fields any detector may attach
type CommonDetails struct {
	VolumeSurge     *float64 `json:"volume_surge,omitempty"`
	ZScore          *float64 `json:"z_score,omitempty"`
	DependencyCount *int     `json:"dependency_count,omitempty"`
}

// PriceSpikeDetails describes a sudden unit price move
type PriceSpikeDetails struct {
	CommonDetails
	PercentageChange *float64 `json:"percentage_change,omitempty"`
	PreviousPrice    *float64 `json:"previous_price,omitempty"`
	CurrentPrice     *float64 `json:"current_price,omitempty"`
}

func (d PriceSpikeDetails) Kind() Type            { return TypePriceSpike }
func (d PriceSpikeDetails) Common() CommonDetails { return d.CommonDetails }

// TariffChangeDetails describes a duty rate change
type TariffChangeDetails struct {
	CommonDetails
	PercentageChange *float64 `json:"percentage_change,omitempty"`
	Country          string   `json:"country,omitempty"`
	HSCode           string   `json:"hs_code,omitempty"`
}

func (d TariffChangeDetails) Kind() Type            { return TypeTariffChange }
func (d TariffChangeDetails) Common() CommonDetails { return d.CommonDetails }

// FreightSurgeDetails describes a freight cost jump on a route
type FreightSurgeDetails struct {
	CommonDetails
	PercentageChange *float64 `json:"percentage_change,omitempty"`
	Route            string   `json:"route,omitempty"`
}

func (d FreightSurgeDetails) Kind() Type            { return TypeFreightSurge }
func (d FreightSurgeDetails) Common() CommonDetails { return d.CommonDetails }

// FXVolatilityDetails describes currency instability affecting a product's cost
type FXVolatilityDetails struct {
	CommonDetails
	Volatility   *float64 `json:"volatility,omitempty"`
	CurrencyRisk *float64 `json:"currency_risk,omitempty"`
	CurrencyPair string   `json:"currency_pair,omitempty"`
}

func (d FXVolatilityDetails) Kind() Type            { return TypeFXVolatility }
func (d FXVolatilityDetails) Common() CommonDetails { return d.CommonDetails }

// GenericDetails carries the common fields for anomaly types without a dedicated variant
type GenericDetails struct {
	CommonDetails
	AnomalyType Type `json:"-"`
}

func (d GenericDetails) Kind() Type            { return d.AnomalyType }
func (d GenericDetails) Common() CommonDetails { return d.CommonDetails }

// DecodeDetails builds the details variant for an anomaly type from its stored JSON.
// An empty payload yields an empty variant. Numeric fields accept numbers and numeric
// strings; values outside float64 range become ±Inf and unusable values are dropped,
// so only a payload that is not a JSON object fails.
func DecodeDetails(t Type, raw []byte) (Details, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var w wireDetails
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", t, err)
	}

	common := CommonDetails{
		VolumeSurge:     w.VolumeSurge.ptr(),
		ZScore:          w.ZScore.ptr(),
		DependencyCount: w.DependencyCount.count(),
	}

	switch t {
	case TypePriceSpike:
		return PriceSpikeDetails{
			CommonDetails:    common,
			PercentageChange: w.PercentageChange.ptr(),
			PreviousPrice:    w.PreviousPrice.ptr(),
			CurrentPrice:     w.CurrentPrice.ptr(),
		}, nil
	case TypeTariffChange:
		return TariffChangeDetails{
			CommonDetails:    common,
			PercentageChange: w.PercentageChange.ptr(),
			Country:          string(w.Country),
			HSCode:           string(w.HSCode),
		}, nil
	case TypeFreightSurge:
		return FreightSurgeDetails{
			CommonDetails:    common,
			PercentageChange: w.PercentageChange.ptr(),
			Route:            string(w.Route),
		}, nil
	case TypeFXVolatility:
		return FXVolatilityDetails{
			CommonDetails: common,
			Volatility:    w.Volatility.ptr(),
			CurrencyRisk:  w.CurrencyRisk.ptr(),
			CurrencyPair:  string(w.CurrencyPair),
		}, nil
	default:
		return GenericDetails{CommonDetails: common, AnomalyType: t}, nil
	}
}

// wireDetails is the union of every stored details field
type wireDetails struct {
	VolumeSurge      number `json:"volume_surge"`
	ZScore           number `json:"z_score"`
	DependencyCount  number `json:"dependency_count"`
	PercentageChange number `json:"percentage_change"`
	PreviousPrice    number `json:"previous_price"`
	CurrentPrice     number `json:"current_price"`
	Volatility       number `json:"volatility"`
	CurrencyRisk     number `json:"currency_risk"`
	Country          text   `json:"country"`
	HSCode           text   `json:"hs_code"`
	Route            text   `json:"route"`
	CurrencyPair     text   `json:"currency_pair"`
}

// maxCount saturates dependency counts
const maxCount = math.MaxInt32

// number is a lenient JSON float
type number struct {
	v   float64
	set bool
}

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(str)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return nil
	}
	n.v, n.set = v, true
	return nil
}

func (n number) ptr() *float64 {
	if !n.set {
		return nil
	}
	v := n.v
	return &v
}

func (n number) count() *int {
	if !n.set || math.IsNaN(n.v) {
		return nil
	}
	c := int(math.Max(-maxCount, math.Min(maxCount, math.Round(n.v))))
	return &c
}

// text accepts strings and keeps other scalars in their literal form
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = text(s)
		return nil
	}
	lit := strings.TrimSpace(string(b))
	if lit != "null" && !strings.HasPrefix(lit, "{") && !strings.HasPrefix(lit, "[") {
		*t = text(lit)
	}
	return nil
}

// Float returns a pointer to v, for building details literals
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v, for building details literals
func Int(v int) *int { return &v }
