package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/subnet-sentinel/internal/domain"
)

func TestMinMaxNormalize(t *testing.T) {
	tests := []struct {
		name   string
		input  []float64
		expect []float64
	}{
		{
			name:   "spread values",
			input:  []float64{2, 4, 6},
			expect: []float64{0, 0.5, 1},
		},
		{
			name:   "negative range",
			input:  []float64{-10, 0, 10},
			expect: []float64{0, 0.5, 1},
		},
		{
			name:   "identical values fall back to midpoint",
			input:  []float64{3, 3, 3},
			expect: []float64{0.5, 0.5, 0.5},
		},
		{
			name:   "single value",
			input:  []float64{42},
			expect: []float64{0.5},
		},
		{
			name:   "empty",
			input:  []float64{},
			expect: []float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinMaxNormalize(tt.input)
			require.Len(t, got, len(tt.expect))
			for i := range tt.expect {
				assert.InDelta(t, tt.expect[i], got[i], 1e-12)
			}
		})
	}
}

func healthyMetrics(netuid int, composite float64) domain.SubnetMetrics {
	return domain.SubnetMetrics{
		NetUID:     netuid,
		Composite:  composite,
		Sharpe:     composite / 100,
		MAR:        composite / 50,
		WinRate:    0.5,
		Emission:   1.0,
		Volatility: 0.02,
		DataPoints: 20,
	}
}

func TestRank_EmptyInput(t *testing.T) {
	r := NewRanker(5, 0.8, 5.0, DefaultWeights())
	assert.Empty(t, r.Rank(nil))
	assert.Empty(t, r.Rank(map[int]domain.SubnetMetrics{}))
}

func TestRank_RiskFilters(t *testing.T) {
	r := NewRanker(5, 0.8, 5.0, DefaultWeights())

	tooFewPoints := healthyMetrics(2, 50)
	tooFewPoints.DataPoints = 4

	blownDrawdown := healthyMetrics(3, 50)
	blownDrawdown.MaxDrawdown = 0.81

	atDrawdownLimit := healthyMetrics(4, 50)
	atDrawdownLimit.MaxDrawdown = 0.8 // inclusive ceiling

	tooVolatile := healthyMetrics(5, 50)
	tooVolatile.Volatility = 5.0 // exclusive guard

	ranked := r.Rank(map[int]domain.SubnetMetrics{
		1: healthyMetrics(1, 60),
		2: tooFewPoints,
		3: blownDrawdown,
		4: atDrawdownLimit,
		5: tooVolatile,
	})

	assert.ElementsMatch(t, []int{1, 4}, ranked)
}

func TestRank_OrdersByWeightedScore(t *testing.T) {
	r := NewRanker(5, 0.8, 5.0, DefaultWeights())

	metrics := map[int]domain.SubnetMetrics{
		11: healthyMetrics(11, 10),
		22: healthyMetrics(22, 90),
		33: healthyMetrics(33, 40),
	}

	ranked := r.Rank(metrics)
	assert.Equal(t, []int{22, 33, 11}, ranked)
}

func TestRank_TiesResolveToLowerNetuid(t *testing.T) {
	r := NewRanker(5, 0.8, 5.0, DefaultWeights())

	// Identical metrics everywhere: every normalized column is 0.5, so every
	// score ties and the order must fall back to ascending netuid.
	metrics := map[int]domain.SubnetMetrics{
		7: healthyMetrics(7, 50),
		3: healthyMetrics(3, 50),
		5: healthyMetrics(5, 50),
	}

	ranked := r.Rank(metrics)
	assert.Equal(t, []int{3, 5, 7}, ranked)
}

func TestRank_Deterministic(t *testing.T) {
	r := NewRanker(5, 0.8, 5.0, DefaultWeights())

	metrics := map[int]domain.SubnetMetrics{}
	for netuid := 1; netuid <= 20; netuid++ {
		metrics[netuid] = healthyMetrics(netuid, float64((netuid*37)%13))
	}

	first := r.Rank(metrics)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Rank(metrics), "ranking must not depend on map iteration order")
	}
}

func TestRank_AllFiltered(t *testing.T) {
	r := NewRanker(5, 0.8, 5.0, DefaultWeights())

	risky := healthyMetrics(1, 50)
	risky.MaxDrawdown = 0.95

	ranked := r.Rank(map[int]domain.SubnetMetrics{1: risky})
	assert.Empty(t, ranked)
}
