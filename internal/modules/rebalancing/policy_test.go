package rebalancing

import (
	"testing"
	"time"

	"github.com/aristath/subnet-sentinel/internal/domain"
)

func TestDecide(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	policy := NewPolicy(0.05, 6*time.Hour)

	tests := []struct {
		name       string
		current    domain.AllocationMap
		proposed   domain.AllocationMap
		lastAccept time.Time
		force      bool
		accepted   bool
		reason     string
	}{
		{
			name:     "empty current bootstraps immediately",
			current:  domain.AllocationMap{},
			proposed: domain.AllocationMap{1: 0.5, 0: 0.5},
			// Cooldown would still be open, but there is nothing to compare.
			lastAccept: now.Add(-time.Minute),
			accepted:   true,
			reason:     domain.ReasonBootstrap,
		},
		{
			name:       "empty proposed also bootstraps",
			current:    domain.AllocationMap{1: 0.5},
			proposed:   domain.AllocationMap{},
			lastAccept: time.Time{},
			accepted:   true,
			reason:     domain.ReasonBootstrap,
		},
		{
			name:       "cooldown rejects even a 0.9 shift",
			current:    domain.AllocationMap{1: 0.95},
			proposed:   domain.AllocationMap{2: 0.95},
			lastAccept: now.Add(-time.Hour),
			accepted:   false,
			reason:     domain.ReasonCooldown,
		},
		{
			name:       "force bypasses the cooldown",
			current:    domain.AllocationMap{1: 0.5, 0: 0.5},
			proposed:   domain.AllocationMap{2: 0.5, 0: 0.5},
			lastAccept: now.Add(-time.Hour),
			force:      true,
			accepted:   true,
			reason:     domain.ReasonForced,
		},
		{
			name:       "force still respects the threshold",
			current:    domain.AllocationMap{1: 0.50, 0: 0.50},
			proposed:   domain.AllocationMap{1: 0.51, 0: 0.49},
			lastAccept: now.Add(-time.Hour),
			force:      true,
			accepted:   false,
			reason:     domain.ReasonBelowThreshold,
		},
		{
			name:       "identical maps reject below threshold",
			current:    domain.AllocationMap{1: 0.5, 2: 0.45, 0: 0.05},
			proposed:   domain.AllocationMap{1: 0.5, 2: 0.45, 0: 0.05},
			lastAccept: now.Add(-24 * time.Hour),
			accepted:   false,
			reason:     domain.ReasonBelowThreshold,
		},
		{
			name:       "diff at threshold accepts",
			current:    domain.AllocationMap{1: 0.50, 0: 0.50},
			proposed:   domain.AllocationMap{1: 0.55, 0: 0.45},
			lastAccept: now.Add(-24 * time.Hour),
			accepted:   true,
			reason:     domain.ReasonThresholdMet,
		},
		{
			name:       "missing key counts as zero",
			current:    domain.AllocationMap{1: 0.95, 0: 0.05},
			proposed:   domain.AllocationMap{1: 0.89, 2: 0.06, 0: 0.05},
			lastAccept: now.Add(-24 * time.Hour),
			accepted:   true,
			reason:     domain.ReasonThresholdMet,
		},
		{
			name:       "never-rebalanced state skips the cooldown check",
			current:    domain.AllocationMap{1: 0.5, 0: 0.5},
			proposed:   domain.AllocationMap{2: 0.5, 0: 0.5},
			lastAccept: time.Time{},
			accepted:   true,
			reason:     domain.ReasonThresholdMet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := policy.Decide(tt.current, tt.proposed, tt.lastAccept, now, tt.force)
			if decision.Accepted != tt.accepted {
				t.Errorf("Accepted = %v, want %v", decision.Accepted, tt.accepted)
			}
			if decision.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", decision.Reason, tt.reason)
			}
			if !decision.Timestamp.Equal(now) {
				t.Errorf("Timestamp = %v, want %v", decision.Timestamp, now)
			}
		})
	}
}

func TestDecide_MaxDiffReported(t *testing.T) {
	policy := NewPolicy(0.05, 6*time.Hour)
	now := time.Now()

	current := domain.AllocationMap{1: 0.60, 0: 0.40}
	proposed := domain.AllocationMap{1: 0.40, 2: 0.20, 0: 0.40}

	decision := policy.Decide(current, proposed, time.Time{}, now, false)
	if !decision.Accepted {
		t.Fatal("expected accept")
	}
	if diff := decision.MaxDiff; diff < 0.199 || diff > 0.201 {
		t.Errorf("MaxDiff = %v, want 0.20", diff)
	}
}
