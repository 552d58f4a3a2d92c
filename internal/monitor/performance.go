// Package monitor watches live strategy performance and triggers emergency
// rebalancing when it deteriorates.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/subnet-sentinel/internal/clients/staking"
	"github.com/aristath/subnet-sentinel/internal/domain"
)

const (
	trailingDays  = 7
	maxLogEntries = 30
)

// PnLProvider supplies daily swap values for a hotkey.
type PnLProvider interface {
	GetPnL(ctx context.Context, hotkey string) ([]staking.PnLPoint, error)
}

// CycleRunner runs an optimization cycle, optionally forcing past the cooldown.
type CycleRunner interface {
	RunCycle(ctx context.Context, force bool) (domain.RebalanceDecision, error)
}

// Sample is one recorded performance observation.
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	Return7d     float64   `json:"return_7d"`
	CurrentValue float64   `json:"current_value"`
}

// PerformanceMonitor computes the trailing 7-day return from PnL data and
// forces a rebalance when it breaches the emergency threshold.
type PerformanceMonitor struct {
	provider  PnLProvider
	runner    CycleRunner
	hotkey    string
	threshold float64 // positive magnitude; -threshold is the trigger

	mu      sync.Mutex
	samples []Sample

	log zerolog.Logger
}

// NewPerformanceMonitor creates a performance monitor.
func NewPerformanceMonitor(provider PnLProvider, runner CycleRunner, hotkey string, threshold float64, log zerolog.Logger) *PerformanceMonitor {
	return &PerformanceMonitor{
		provider:  provider,
		runner:    runner,
		hotkey:    hotkey,
		threshold: threshold,
		log:       log.With().Str("component", "performance_monitor").Logger(),
	}
}

// Check fetches recent PnL, records the trailing return, and fires an
// emergency forced rebalance when performance breaches the threshold.
// Missing or short PnL history is not an error; there is nothing to act on.
func (m *PerformanceMonitor) Check(ctx context.Context) error {
	points, err := m.provider.GetPnL(ctx, m.hotkey)
	if err != nil {
		return fmt.Errorf("failed to fetch pnl: %w", err)
	}
	if len(points) < 2 {
		return nil
	}

	recent := points
	if len(recent) > trailingDays {
		recent = recent[len(recent)-trailingDays:]
	}

	first := recent[0].SwapClose
	last := recent[len(recent)-1].SwapClose
	if first <= 0 {
		return nil
	}
	trailingReturn := (last - first) / first

	m.record(Sample{
		Timestamp:    time.Now().UTC(),
		Return7d:     trailingReturn,
		CurrentValue: last,
	})

	if trailingReturn < -m.threshold {
		m.log.Warn().
			Float64("return_7d", trailingReturn).
			Float64("threshold", -m.threshold).
			Msg("Poor performance detected, triggering emergency rebalance")

		if _, err := m.runner.RunCycle(ctx, true); err != nil {
			return fmt.Errorf("emergency rebalance failed: %w", err)
		}
		return nil
	}

	m.log.Debug().Float64("return_7d", trailingReturn).Msg("Performance within bounds")
	return nil
}

// Samples returns the recorded performance log, oldest first.
func (m *PerformanceMonitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.samples))
	copy(out, m.samples)
	return out
}

func (m *PerformanceMonitor) record(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, s)
	if len(m.samples) > maxLogEntries {
		m.samples = m.samples[len(m.samples)-maxLogEntries:]
	}
}
