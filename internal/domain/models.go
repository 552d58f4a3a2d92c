// Package domain contains the core data model for Subnet Sentinel.
// The domain layer is pure: no infrastructure dependencies, no I/O.
package domain

import (
	"time"
)

// CashNetUID is the reserved allocation key for the uninvested cash reserve.
// Subnet 0 is the root network and is never a staking candidate, which makes
// it a safe sentinel.
const CashNetUID = 0

// TimeSeriesPoint is a single daily observation for one subnet.
// Points are ordered by date per subnet; dates need not be contiguous.
type TimeSeriesPoint struct {
	NetUID   int       `json:"netuid"`
	Date     time.Time `json:"date"`
	Price    float64   `json:"price"`
	Emission float64   `json:"emission"`
	Weight   float64   `json:"weight"`
	TaoIn    float64   `json:"tao_in"`
	AlphaIn  float64   `json:"alpha_in"`
}

// SubnetMetrics holds the performance and risk statistics computed from one
// subnet's price/emission series. A SubnetMetrics value exists only for
// subnets with at least MinDataPoints valid return observations and at least
// one non-zero price.
type SubnetMetrics struct {
	NetUID       int     `json:"netuid"`
	TotalReturn  float64 `json:"total_return"`
	Volatility   float64 `json:"volatility"`   // population std dev of returns, >= 0
	Sharpe       float64 `json:"sharpe"`       // mean(returns)/volatility, 0 when volatility is 0
	MaxDrawdown  float64 `json:"max_drawdown"` // absolute magnitude, >= 0
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"` // +Inf when there are no losing periods
	Kelly        float64 `json:"kelly"`
	MAR          float64 `json:"mar"` // total return / max drawdown (floored)
	LSR          float64 `json:"lsr"` // signed-return ratio
	Odds         float64 `json:"odds"`
	DailyReturn  float64 `json:"daily_return"` // geometric mean daily rate, not arithmetic
	Composite    float64 `json:"composite_score"`
	Emission     float64 `json:"emission"` // mean emission over the window
	Weight       float64 `json:"weight"`   // mean weight over the window
	CurrentPrice float64 `json:"current_price"`
	DataPoints   int     `json:"data_points"` // count of valid return observations

	// Audit-only indicator fields: shown in the API, never used by the
	// ranker or allocator.
	Momentum float64 `json:"momentum"` // rate of change over the window
	SMATrend float64 `json:"sma_trend"`
}

// AllocationMap maps a netuid to a capital fraction in [0, 1].
// CashNetUID represents the cash reserve bucket. The sum of all fractions
// never exceeds 1.0 beyond floating tolerance.
type AllocationMap map[int]float64

// Total returns the sum of all allocation fractions, cash included.
func (a AllocationMap) Total() float64 {
	total := 0.0
	for _, v := range a {
		total += v
	}
	return total
}

// MaxAbsDiff returns the largest absolute per-subnet difference between two
// allocation maps, taken over the union of keys. Missing keys count as 0.
func (a AllocationMap) MaxAbsDiff(other AllocationMap) float64 {
	maxDiff := 0.0
	for netuid, v := range a {
		diff := v - other[netuid]
		if diff < 0 {
			diff = -diff
		}
		if diff > maxDiff {
			maxDiff = diff
		}
	}
	for netuid, v := range other {
		if _, seen := a[netuid]; seen {
			continue
		}
		if v < 0 {
			v = -v
		}
		if v > maxDiff {
			maxDiff = v
		}
	}
	return maxDiff
}

// Clone returns a deep copy of the allocation map.
func (a AllocationMap) Clone() AllocationMap {
	out := make(AllocationMap, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// StrategyState is the currently active allocation plus the timestamp of its
// last acceptance. It is created empty (or loaded from persisted state) at
// process start and replaced wholly, never merged, whenever the rebalance
// policy approves a new allocation.
type StrategyState struct {
	Allocations   AllocationMap `json:"allocations"`
	LastRebalance time.Time     `json:"last_rebalance"` // zero when never rebalanced
}

// Empty reports whether the state carries no active allocation.
func (s StrategyState) Empty() bool {
	return len(s.Allocations) == 0
}

// RebalanceDecision is the outcome of one rebalance policy evaluation.
type RebalanceDecision struct {
	Accepted  bool      `json:"accepted"`
	MaxDiff   float64   `json:"max_diff"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// Rebalance decision reasons.
const (
	ReasonBootstrap      = "bootstrap"     // no current or no proposed allocation
	ReasonCooldown       = "cooldown"      // cooldown window still open
	ReasonThresholdMet   = "threshold_met" // change magnitude at or above threshold
	ReasonBelowThreshold = "below_threshold"
	ReasonForced         = "forced" // cooldown overridden by caller
)
