// Package allocation sizes positions across ranked subnets using
// inverse-volatility risk parity with min/max clamping.
package allocation

import (
	"math"

	"github.com/aristath/subnet-sentinel/internal/domain"
)

// Volatility floor for the inverse-volatility weighting. Prevents a
// near-zero-volatility subnet from absorbing the whole risk budget.
const volatilityFloor = 0.01

// Leftover budget below this threshold is dust and is not assigned to cash.
const cashDustThreshold = 0.01

// Config holds the allocator constraints.
type Config struct {
	MaxAllocation  float64 // Maximum fraction per subnet
	MinAllocation  float64 // Minimum fraction per subnet
	CashAllocation float64 // Reserve kept out of the risk budget
	MaxSubnets     int     // Maximum number of subnets to hold
}

// Allocator converts a ranked subnet list plus per-subnet volatility into a
// constrained, budget-respecting allocation map. Pure computation.
type Allocator struct {
	cfg Config
}

// NewAllocator creates an allocator with the given constraints.
func NewAllocator(cfg Config) *Allocator {
	return &Allocator{cfg: cfg}
}

// Allocate builds the allocation map for the top-ranked subnets.
//
// Each selected subnet receives a share of the risk budget proportional to
// the inverse of its (floored) volatility, clamped into
// [MinAllocation, MaxAllocation]. If clamping pushes the sum above the risk
// budget, every entry shrinks by the same factor so the sum lands exactly on
// the budget — the uniform shrink preserves relative ratios and may push
// entries below MinAllocation, which is accepted behavior. Leftover budget
// above the dust threshold goes to the cash sentinel.
//
// An empty ranked list or metrics map yields an empty map, not a fault.
func (a *Allocator) Allocate(ranked []int, metrics map[int]domain.SubnetMetrics) domain.AllocationMap {
	allocations := make(domain.AllocationMap)
	if len(ranked) == 0 || len(metrics) == 0 {
		return allocations
	}

	selected := ranked
	if len(selected) > a.cfg.MaxSubnets {
		selected = selected[:a.cfg.MaxSubnets]
	}

	riskBudget := 1.0 - a.cfg.CashAllocation

	invVol := make(map[int]float64, len(selected))
	totalInvVol := 0.0
	for _, netuid := range selected {
		m, ok := metrics[netuid]
		if !ok {
			continue
		}
		iv := 1.0 / math.Max(m.Volatility, volatilityFloor)
		invVol[netuid] = iv
		totalInvVol += iv
	}
	if totalInvVol == 0 {
		return allocations
	}

	for _, netuid := range selected {
		iv, ok := invVol[netuid]
		if !ok {
			continue
		}
		base := (iv / totalInvVol) * riskBudget
		allocations[netuid] = clamp(base, a.cfg.MinAllocation, a.cfg.MaxAllocation)
	}

	// Uniform shrink back onto the risk budget when clamping overshot it.
	totalAllocated := allocations.Total()
	if totalAllocated > riskBudget {
		scale := riskBudget / totalAllocated
		for netuid := range allocations {
			allocations[netuid] *= scale
		}
	}

	if remaining := 1.0 - allocations.Total(); remaining > cashDustThreshold {
		allocations[domain.CashNetUID] = remaining
	}

	return allocations
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
