package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/subnet-sentinel/internal/domain"
	"github.com/aristath/subnet-sentinel/internal/modules/allocation"
	"github.com/aristath/subnet-sentinel/internal/modules/metrics"
	"github.com/aristath/subnet-sentinel/internal/modules/ranking"
	"github.com/aristath/subnet-sentinel/internal/modules/rebalancing"
)

// Cycle outcomes that never reach the rebalance policy.
const (
	ReasonNoData       = "no_data"       // provider returned nothing usable
	ReasonNoCandidates = "no_candidates" // every subnet failed the risk filters
)

// SeriesProvider supplies subnet time series for a date range.
// An empty result means "no metrics", not an error.
type SeriesProvider interface {
	GetSeries(from, to time.Time) (map[int][]domain.TimeSeriesPoint, error)
}

// Submitter notifies the network that a new strategy revision exists.
type Submitter interface {
	SubmitStrategy(ctx context.Context, hotkey string) error
}

// Service runs the optimization cycle: fetch series, compute metrics, rank,
// allocate, and gate the result through the rebalance policy. On acceptance
// it replaces the persisted strategy state wholly and submits the revision.
//
// The engine components are pure and lock-free; the mutex here provides the
// caller-level serialization of concurrent cycles for the same hotkey.
type Service struct {
	provider   SeriesProvider
	calculator *metrics.Calculator
	ranker     *ranking.Ranker
	allocator  *allocation.Allocator
	policy     *rebalancing.Policy
	repo       *Repository
	fileStore  *FileStore
	submitter  Submitter // optional

	hotkey       string
	lookbackDays int

	mu            sync.Mutex
	state         domain.StrategyState
	latestMetrics map[int]domain.SubnetMetrics

	log zerolog.Logger
}

// NewService creates the optimizer service. The initial state should come
// from Repository.LoadState at startup.
func NewService(
	provider SeriesProvider,
	calculator *metrics.Calculator,
	ranker *ranking.Ranker,
	allocator *allocation.Allocator,
	policy *rebalancing.Policy,
	repo *Repository,
	fileStore *FileStore,
	submitter Submitter,
	hotkey string,
	lookbackDays int,
	initial domain.StrategyState,
	log zerolog.Logger,
) *Service {
	if initial.Allocations == nil {
		initial.Allocations = make(domain.AllocationMap)
	}
	return &Service{
		provider:     provider,
		calculator:   calculator,
		ranker:       ranker,
		allocator:    allocator,
		policy:       policy,
		repo:         repo,
		fileStore:    fileStore,
		submitter:    submitter,
		hotkey:       hotkey,
		lookbackDays: lookbackDays,
		state:        initial,
		log:          log.With().Str("component", "optimizer").Logger(),
	}
}

// CurrentState returns a copy of the active strategy state.
func (s *Service) CurrentState() domain.StrategyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.StrategyState{
		Allocations:   s.state.Allocations.Clone(),
		LastRebalance: s.state.LastRebalance,
	}
}

// LatestMetrics returns the metric records from the most recent cycle.
func (s *Service) LatestMetrics() map[int]domain.SubnetMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]domain.SubnetMetrics, len(s.latestMetrics))
	for k, v := range s.latestMetrics {
		out[k] = v
	}
	return out
}

// RunCycle executes one optimization cycle. With force set, the cooldown is
// overridden (emergency rebalancing and the manual API trigger).
//
// Provider or persistence failures surface as recoverable errors and leave
// the active state untouched; the next scheduled cycle retries.
func (s *Service) RunCycle(ctx context.Context, force bool) (domain.RebalanceDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := uuid.New().String()
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -s.lookbackDays)

	log := s.log.With().Str("run_id", runID).Logger()
	log.Info().Bool("force", force).Time("from", from).Msg("Starting optimization cycle")

	series, err := s.provider.GetSeries(from, now)
	if err != nil {
		return domain.RebalanceDecision{}, fmt.Errorf("failed to fetch market data: %w", err)
	}

	subnetMetrics := s.calculator.ComputeAll(series)
	s.latestMetrics = subnetMetrics
	if len(subnetMetrics) == 0 {
		log.Warn().Int("series", len(series)).Msg("No valid metrics; keeping current strategy")
		return domain.RebalanceDecision{Reason: ReasonNoData, Timestamp: now}, nil
	}

	ranked := s.ranker.Rank(subnetMetrics)
	proposed := s.allocator.Allocate(ranked, subnetMetrics)
	if len(proposed) == 0 {
		// An empty proposal never replaces a live strategy; wiping the
		// active allocation because every candidate failed a risk filter
		// would be a forced full exit, not an optimization.
		log.Warn().Int("metrics", len(subnetMetrics)).Msg("No allocation produced; keeping current strategy")
		return domain.RebalanceDecision{Reason: ReasonNoCandidates, Timestamp: now}, nil
	}

	decision := s.policy.Decide(s.state.Allocations, proposed, s.state.LastRebalance, now, force)

	if err := s.repo.LogDecision(runID, decision, proposed); err != nil {
		// Audit trail only; the decision itself still applies.
		log.Warn().Err(err).Msg("Failed to record rebalance decision")
	}

	if !decision.Accepted {
		log.Info().
			Str("reason", decision.Reason).
			Float64("max_diff", decision.MaxDiff).
			Msg("Rebalance rejected")
		return decision, nil
	}

	newState := domain.StrategyState{Allocations: proposed, LastRebalance: now}
	if err := s.fileStore.Save(s.hotkey, proposed); err != nil {
		return decision, fmt.Errorf("failed to persist strategy file: %w", err)
	}
	if err := s.repo.SaveState(newState); err != nil {
		return decision, fmt.Errorf("failed to persist strategy state: %w", err)
	}
	s.state = newState

	log.Info().
		Str("reason", decision.Reason).
		Float64("max_diff", decision.MaxDiff).
		Int("subnets", len(proposed)).
		Float64("total", proposed.Total()).
		Msg("Rebalance accepted")

	if s.submitter != nil {
		if err := s.submitter.SubmitStrategy(ctx, s.hotkey); err != nil {
			// Submission retries on the next cycle; the accepted state stands.
			log.Warn().Err(err).Msg("Failed to submit strategy revision")
		}
	}

	return decision, nil
}
