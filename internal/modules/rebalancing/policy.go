// Package rebalancing decides whether a proposed allocation should replace
// the currently active one.
package rebalancing

import (
	"time"

	"github.com/aristath/subnet-sentinel/internal/domain"
)

// Policy gates rebalancing with a cooldown rule and a change-magnitude
// threshold. It is stateless across calls: the last-acceptance timestamp is
// supplied by the caller, and on ACCEPT the caller is responsible for
// updating it.
//
// Precedence is deliberate volatility damping: the cooldown always wins over
// the threshold unless the caller forces the evaluation. Only an empty
// current state bypasses the cooldown, since there is nothing to compare
// against.
type Policy struct {
	Threshold float64       // Minimum max-abs-diff to accept
	Cooldown  time.Duration // Minimum time between accepted rebalances
}

// NewPolicy creates a rebalance policy.
func NewPolicy(threshold float64, cooldown time.Duration) *Policy {
	return &Policy{Threshold: threshold, Cooldown: cooldown}
}

// Decide evaluates a proposed allocation against the current one.
//
//   - Either map empty: ACCEPT (bootstrap), cooldown ignored.
//   - Cooldown open and not forced: REJECT, regardless of change size.
//   - Otherwise ACCEPT iff the max absolute per-subnet difference across the
//     union of keys is at or above the threshold (missing keys count as 0).
func (p *Policy) Decide(current, proposed domain.AllocationMap, lastAccept, now time.Time, force bool) domain.RebalanceDecision {
	if len(current) == 0 || len(proposed) == 0 {
		return domain.RebalanceDecision{
			Accepted:  true,
			MaxDiff:   current.MaxAbsDiff(proposed),
			Reason:    domain.ReasonBootstrap,
			Timestamp: now,
		}
	}

	if !force && !lastAccept.IsZero() && now.Sub(lastAccept) < p.Cooldown {
		return domain.RebalanceDecision{
			Accepted:  false,
			MaxDiff:   current.MaxAbsDiff(proposed),
			Reason:    domain.ReasonCooldown,
			Timestamp: now,
		}
	}

	maxDiff := current.MaxAbsDiff(proposed)
	if maxDiff >= p.Threshold {
		reason := domain.ReasonThresholdMet
		if force {
			reason = domain.ReasonForced
		}
		return domain.RebalanceDecision{
			Accepted:  true,
			MaxDiff:   maxDiff,
			Reason:    reason,
			Timestamp: now,
		}
	}

	return domain.RebalanceDecision{
		Accepted:  false,
		MaxDiff:   maxDiff,
		Reason:    domain.ReasonBelowThreshold,
		Timestamp: now,
	}
}
