// Package metrics converts per-subnet price/emission time series into
// performance and risk statistics.
//
// Every formula here resolves its own numeric edge cases (division by zero,
// empty subsets) with a defined fallback value instead of faulting. The
// pipeline is total: a degenerate series yields "no record", never an error.
package metrics

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/subnet-sentinel/internal/domain"
)

// Indicator windows for the audit-only fields.
const (
	momentumPeriod = 10
	smaPeriod      = 5
)

// Calculator computes SubnetMetrics from chronologically sorted series.
// It is a pure computation; it holds no mutable state and performs no I/O.
type Calculator struct {
	MinDataPoints int
}

// NewCalculator creates a calculator with the given minimum-data threshold.
func NewCalculator(minDataPoints int) *Calculator {
	return &Calculator{MinDataPoints: minDataPoints}
}

// ComputeAll computes metrics for every subnet series that passes the
// minimum-data and non-zero-price checks. Subnets that fail are silently
// excluded from the result.
func (c *Calculator) ComputeAll(series map[int][]domain.TimeSeriesPoint) map[int]domain.SubnetMetrics {
	result := make(map[int]domain.SubnetMetrics)
	for netuid, points := range series {
		if m, ok := c.Compute(netuid, points); ok {
			result[netuid] = m
		}
	}
	return result
}

// Compute calculates the full metric record for one subnet.
// The second return value is false when the series is too short, has only
// zero prices, or yields no valid return observations.
func (c *Calculator) Compute(netuid int, points []domain.TimeSeriesPoint) (domain.SubnetMetrics, bool) {
	if len(points) < c.MinDataPoints {
		return domain.SubnetMetrics{}, false
	}

	prices := make([]float64, len(points))
	allZero := true
	for i, p := range points {
		prices[i] = p.Price
		if p.Price != 0 {
			allZero = false
		}
	}
	if allZero {
		return domain.SubnetMetrics{}, false
	}

	returns := periodReturns(prices)
	if len(returns) == 0 {
		return domain.SubnetMetrics{}, false
	}

	totalReturn := 0.0
	if prices[0] > 0 {
		totalReturn = (prices[len(prices)-1] - prices[0]) / prices[0]
	}

	volatility := 0.0
	if len(returns) > 1 {
		// Population standard deviation, matching the scoring mechanism.
		mean := stat.Mean(returns, nil)
		volatility = math.Sqrt(stat.MomentAbout(2, returns, mean, nil))
	}

	sharpe := 0.0
	if volatility > 0 {
		sharpe = stat.Mean(returns, nil) / volatility
	}

	maxDrawdown := maxDrawdownMagnitude(returns)

	wins, losses := partitionReturns(returns)
	winRate := float64(len(wins)) / float64(len(returns))

	avgWin := 0.0
	if len(wins) > 0 {
		avgWin = stat.Mean(wins, nil)
	}
	avgLoss := 0.0
	if len(losses) > 0 {
		avgLoss = stat.Mean(losses, nil)
	}

	profitFactor := math.Inf(1)
	if avgLoss != 0 {
		profitFactor = math.Abs(avgWin / avgLoss)
	}

	kelly := 0.0
	if profitFactor > 0 {
		// (1-w)/profitFactor collapses to 0 when profitFactor is +Inf,
		// so a loss-free series gets kelly == winRate without faulting.
		kelly = winRate - (1-winRate)/profitFactor
	}

	// MAR ratio with a drawdown floor to avoid blow-up near zero drawdown.
	mar := totalReturn / math.Max(math.Abs(maxDrawdown), 0.01)

	lsr := 0.0
	sumAbs := 0.0
	sumSigned := 0.0
	for _, r := range returns {
		sumSigned += r
		sumAbs += math.Abs(r)
	}
	if sumAbs > 0 {
		lsr = sumSigned / sumAbs
	}

	odds := 50 + kelly*50

	// Geometric-mean daily rate; not an arithmetic average return.
	dailyReturn := 0.0
	if len(returns) > 0 {
		dailyReturn = math.Pow(1+totalReturn, 1/float64(len(returns))) - 1
	}

	// The composite is an unbounded, sign-sensitive product. Its literal
	// multiplicative form is load-bearing: the ranking weights downstream
	// are tuned against it.
	composite := mar * lsr * odds * dailyReturn * 100

	emissionSum := 0.0
	weightSum := 0.0
	for _, p := range points {
		emissionSum += p.Emission
		weightSum += p.Weight
	}

	return domain.SubnetMetrics{
		NetUID:       netuid,
		TotalReturn:  totalReturn,
		Volatility:   volatility,
		Sharpe:       sharpe,
		MaxDrawdown:  math.Abs(maxDrawdown),
		WinRate:      winRate,
		ProfitFactor: profitFactor,
		Kelly:        kelly,
		MAR:          mar,
		LSR:          lsr,
		Odds:         odds,
		DailyReturn:  dailyReturn,
		Composite:    composite,
		Emission:     emissionSum / float64(len(points)),
		Weight:       weightSum / float64(len(points)),
		CurrentPrice: prices[len(prices)-1],
		DataPoints:   len(returns),
		Momentum:     momentum(prices),
		SMATrend:     smaTrend(prices),
	}, true
}

// periodReturns computes simple period returns, discarding any non-finite
// value produced by a zero or missing previous price.
func periodReturns(prices []float64) []float64 {
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		r := (prices[i] - prices[i-1]) / prices[i-1]
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		returns = append(returns, r)
	}
	return returns
}

// maxDrawdownMagnitude walks the cumulative product of (1+r) and returns the
// most negative peak-to-trough drop as a non-negative magnitude.
func maxDrawdownMagnitude(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	cumulative := 1.0
	peak := 1.0
	worst := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		drawdown := (cumulative - peak) / peak
		if drawdown < worst {
			worst = drawdown
		}
	}
	return math.Abs(worst)
}

func partitionReturns(returns []float64) (wins, losses []float64) {
	for _, r := range returns {
		switch {
		case r > 0:
			wins = append(wins, r)
		case r < 0:
			losses = append(losses, r)
		}
	}
	return wins, losses
}

// momentum is the rate of change over the indicator window, as a fraction.
// Audit-only; the ranker never reads it.
func momentum(prices []float64) float64 {
	period := momentumPeriod
	if period > len(prices)-1 {
		period = len(prices) - 1
	}
	if period < 1 {
		return 0
	}
	roc := talib.Roc(prices, period)
	last := roc[len(roc)-1]
	if math.IsNaN(last) || math.IsInf(last, 0) {
		return 0
	}
	return last / 100
}

// smaTrend is current price relative to its short moving average, as a
// fraction. Positive means the price sits above trend. Audit-only.
func smaTrend(prices []float64) float64 {
	if len(prices) < smaPeriod {
		return 0
	}
	sma := talib.Sma(prices, smaPeriod)
	last := sma[len(sma)-1]
	if last == 0 || math.IsNaN(last) {
		return 0
	}
	return prices[len(prices)-1]/last - 1
}
