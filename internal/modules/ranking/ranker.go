// Package ranking orders subnets by a weighted composite of normalized
// performance metrics.
package ranking

import (
	"sort"

	"github.com/aristath/subnet-sentinel/internal/domain"
)

// Weights are the fixed scoring weights, tuned against the subnet scoring
// mechanism. They must sum to 1.0 (validated at configuration time).
type Weights struct {
	Composite float64 // Primary scoring metric
	Sharpe    float64 // Risk-adjusted return
	MAR       float64 // Return/risk ratio
	WinRate   float64 // Consistency
	Emission  float64 // Steady income
}

// DefaultWeights returns the production scoring weights.
func DefaultWeights() Weights {
	return Weights{
		Composite: 0.30,
		Sharpe:    0.25,
		MAR:       0.20,
		WinRate:   0.15,
		Emission:  0.10,
	}
}

// Ranker filters out high-risk subnets and produces a total order over the
// survivors, best first. Pure computation, deterministic for identical input.
type Ranker struct {
	MinDataPoints    int
	MaxDrawdownLimit float64
	VolatilityLimit  float64
	Weights          Weights
}

// NewRanker creates a ranker with the given risk limits and weights.
func NewRanker(minDataPoints int, maxDrawdownLimit, volatilityLimit float64, weights Weights) *Ranker {
	return &Ranker{
		MinDataPoints:    minDataPoints,
		MaxDrawdownLimit: maxDrawdownLimit,
		VolatilityLimit:  volatilityLimit,
		Weights:          weights,
	}
}

// Rank returns netuids ordered by descending weighted score.
// An empty metrics map yields an empty slice, not an error.
//
// Candidates walk in ascending netuid order before the stable sort, so ties
// resolve to the lower netuid on every run.
func (r *Ranker) Rank(metrics map[int]domain.SubnetMetrics) []int {
	if len(metrics) == 0 {
		return []int{}
	}

	candidates := make([]int, 0, len(metrics))
	for netuid, m := range metrics {
		if m.DataPoints < r.MinDataPoints {
			continue
		}
		if m.MaxDrawdown > r.MaxDrawdownLimit {
			continue
		}
		if m.Volatility >= r.VolatilityLimit {
			continue
		}
		candidates = append(candidates, netuid)
	}
	sort.Ints(candidates)

	if len(candidates) == 0 {
		return []int{}
	}

	extract := func(get func(domain.SubnetMetrics) float64) []float64 {
		values := make([]float64, len(candidates))
		for i, netuid := range candidates {
			values[i] = get(metrics[netuid])
		}
		return values
	}

	composite := MinMaxNormalize(extract(func(m domain.SubnetMetrics) float64 { return m.Composite }))
	sharpe := MinMaxNormalize(extract(func(m domain.SubnetMetrics) float64 { return m.Sharpe }))
	mar := MinMaxNormalize(extract(func(m domain.SubnetMetrics) float64 { return m.MAR }))
	winRate := MinMaxNormalize(extract(func(m domain.SubnetMetrics) float64 { return m.WinRate }))
	emission := MinMaxNormalize(extract(func(m domain.SubnetMetrics) float64 { return m.Emission }))

	scores := make(map[int]float64, len(candidates))
	for i, netuid := range candidates {
		scores[netuid] = composite[i]*r.Weights.Composite +
			sharpe[i]*r.Weights.Sharpe +
			mar[i]*r.Weights.MAR +
			winRate[i]*r.Weights.WinRate +
			emission[i]*r.Weights.Emission
	}

	ranked := make([]int, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i]] > scores[ranked[j]]
	})

	return ranked
}

// MinMaxNormalize scales values to [0, 1] across the set. When all values
// are equal there is no spread to normalize over, and every entry gets 0.5
// instead of a division fault.
func MinMaxNormalize(values []float64) []float64 {
	if len(values) == 0 {
		return []float64{}
	}

	minVal, maxVal := values[0], values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}

	normalized := make([]float64, len(values))
	if maxVal <= minVal {
		for i := range normalized {
			normalized[i] = 0.5
		}
		return normalized
	}

	for i, v := range values {
		normalized[i] = (v - minVal) / (maxVal - minVal)
	}
	return normalized
}
