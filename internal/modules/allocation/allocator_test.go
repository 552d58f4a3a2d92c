package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/subnet-sentinel/internal/domain"
)

func defaultConfig() Config {
	return Config{
		MaxAllocation:  0.25,
		MinAllocation:  0.02,
		CashAllocation: 0.05,
		MaxSubnets:     10,
	}
}

func metricsWithVol(vols map[int]float64) map[int]domain.SubnetMetrics {
	m := make(map[int]domain.SubnetMetrics, len(vols))
	for netuid, vol := range vols {
		m[netuid] = domain.SubnetMetrics{NetUID: netuid, Volatility: vol}
	}
	return m
}

func TestAllocate_EmptyInputs(t *testing.T) {
	a := NewAllocator(defaultConfig())

	assert.Empty(t, a.Allocate(nil, metricsWithVol(map[int]float64{1: 0.1})))
	assert.Empty(t, a.Allocate([]int{1, 2}, nil))
	assert.Empty(t, a.Allocate([]int{}, map[int]domain.SubnetMetrics{}))
}

func TestAllocate_InverseVolatilityOrdering(t *testing.T) {
	a := NewAllocator(Config{
		MaxAllocation:  0.9, // wide enough that no clamping interferes
		MinAllocation:  0.0,
		CashAllocation: 0.05,
		MaxSubnets:     10,
	})

	metrics := metricsWithVol(map[int]float64{1: 0.02, 2: 0.08})
	allocations := a.Allocate([]int{1, 2}, metrics)

	require.Contains(t, allocations, 1)
	require.Contains(t, allocations, 2)
	assert.Greater(t, allocations[1], allocations[2], "lower volatility earns the larger share")

	// Shares are exactly inverse-proportional to volatility: 1/0.02 vs 1/0.08.
	assert.InDelta(t, 4.0, allocations[1]/allocations[2], 1e-9)
	assert.InDelta(t, 0.95, allocations[1]+allocations[2], 1e-9)
}

func TestAllocate_VolatilityFloor(t *testing.T) {
	a := NewAllocator(Config{
		MaxAllocation:  0.9,
		MinAllocation:  0.0,
		CashAllocation: 0.05,
		MaxSubnets:     10,
	})

	// Zero volatility is floored, not divided by.
	metrics := metricsWithVol(map[int]float64{1: 0.0, 2: 0.01})
	allocations := a.Allocate([]int{1, 2}, metrics)

	assert.InDelta(t, allocations[1], allocations[2], 1e-9, "both sit at the floor and split evenly")
}

func TestAllocate_MaxSubnetsTruncation(t *testing.T) {
	cfg := defaultConfig()
	cfg.MaxSubnets = 2
	a := NewAllocator(cfg)

	metrics := metricsWithVol(map[int]float64{1: 0.1, 2: 0.1, 3: 0.1, 4: 0.1})
	allocations := a.Allocate([]int{3, 1, 4, 2}, metrics)

	assert.Contains(t, allocations, 3)
	assert.Contains(t, allocations, 1)
	assert.NotContains(t, allocations, 4)
	assert.NotContains(t, allocations, 2)
}

func TestAllocate_ClampingAndShrinkLandsOnBudget(t *testing.T) {
	a := NewAllocator(defaultConfig())

	// Ten equal-volatility subnets: base share 0.095 each, within bounds, so
	// the sum is exactly the risk budget and cash takes the configured 5%.
	vols := map[int]float64{}
	ranked := []int{}
	for netuid := 1; netuid <= 10; netuid++ {
		vols[netuid] = 0.05
		ranked = append(ranked, netuid)
	}
	allocations := a.Allocate(ranked, metricsWithVol(vols))

	riskSum := 0.0
	for netuid, fraction := range allocations {
		if netuid == domain.CashNetUID {
			continue
		}
		assert.GreaterOrEqual(t, fraction, 0.02)
		assert.LessOrEqual(t, fraction, 0.25)
		riskSum += fraction
	}
	assert.InDelta(t, 0.95, riskSum, 1e-6)
	assert.InDelta(t, 0.05, allocations[domain.CashNetUID], 1e-6)
	assert.InDelta(t, 1.0, allocations.Total(), 1e-6)
}

func TestAllocate_MinClampOvershootShrinksUniformly(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinAllocation = 0.20
	cfg.MaxSubnets = 6
	a := NewAllocator(cfg)

	// Six subnets forced to 0.20 each sums to 1.20 > 0.95: every entry must
	// shrink by the same factor so the sum lands exactly on the budget.
	vols := map[int]float64{}
	ranked := []int{}
	for netuid := 1; netuid <= 6; netuid++ {
		vols[netuid] = 0.05
		ranked = append(ranked, netuid)
	}
	allocations := a.Allocate(ranked, metricsWithVol(vols))

	riskSum := 0.0
	for netuid, fraction := range allocations {
		if netuid == domain.CashNetUID {
			continue
		}
		assert.InDelta(t, 0.95/6, fraction, 1e-9)
		riskSum += fraction
	}
	assert.InDelta(t, 0.95, riskSum, 1e-6)
	assert.LessOrEqual(t, allocations.Total(), 1.0+1e-6)
}

func TestAllocate_SingleDominantSubnetLeavesCash(t *testing.T) {
	a := NewAllocator(defaultConfig())

	allocations := a.Allocate([]int{1}, metricsWithVol(map[int]float64{1: 0.05}))

	assert.InDelta(t, 0.25, allocations[1], 1e-9, "single subnet caps at the max")
	assert.InDelta(t, 0.75, allocations[domain.CashNetUID], 1e-9, "unused budget flows to cash")
	assert.InDelta(t, 1.0, allocations.Total(), 1e-9)
}

func TestAllocate_RankedEntryMissingFromMetrics(t *testing.T) {
	a := NewAllocator(defaultConfig())

	allocations := a.Allocate([]int{1, 99}, metricsWithVol(map[int]float64{1: 0.05}))

	assert.NotContains(t, allocations, 99)
	assert.Contains(t, allocations, 1)
}
