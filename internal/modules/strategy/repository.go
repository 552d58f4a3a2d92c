package strategy

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/subnet-sentinel/internal/database"
	"github.com/aristath/subnet-sentinel/internal/domain"
)

const lastRebalanceKey = "last_rebalance"

// Repository handles strategy state database operations.
// Database: strategy.db (active_strategy, strategy_meta, rebalance_log).
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new strategy repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "strategy").Logger(),
	}
}

// LoadState reads the persisted strategy state. A fresh database yields an
// empty state, not an error.
func (r *Repository) LoadState() (domain.StrategyState, error) {
	state := domain.StrategyState{Allocations: make(domain.AllocationMap)}

	rows, err := r.db.Query("SELECT netuid, allocation FROM active_strategy")
	if err != nil {
		return state, fmt.Errorf("failed to query active strategy: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var netuid int
		var allocation float64
		if err := rows.Scan(&netuid, &allocation); err != nil {
			return state, fmt.Errorf("failed to scan active strategy row: %w", err)
		}
		state.Allocations[netuid] = allocation
	}
	if err := rows.Err(); err != nil {
		return state, fmt.Errorf("error iterating active strategy: %w", err)
	}

	var raw string
	err = r.db.QueryRow("SELECT value FROM strategy_meta WHERE key = ?", lastRebalanceKey).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		// Never rebalanced; zero timestamp.
	case err != nil:
		return state, fmt.Errorf("failed to query last rebalance: %w", err)
	default:
		ts, parseErr := time.Parse(time.RFC3339, raw)
		if parseErr != nil {
			return state, fmt.Errorf("invalid last rebalance timestamp %q: %w", raw, parseErr)
		}
		state.LastRebalance = ts
	}

	return state, nil
}

// SaveState replaces the persisted state wholly — active rows are deleted and
// rewritten in one transaction, never merged.
func (r *Repository) SaveState(state domain.StrategyState) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM active_strategy"); err != nil {
			return fmt.Errorf("failed to clear active strategy: %w", err)
		}

		now := time.Now().UTC().Format(time.RFC3339)
		for netuid, allocation := range state.Allocations {
			if _, err := tx.Exec(
				"INSERT INTO active_strategy (netuid, allocation, updated_at) VALUES (?, ?, ?)",
				netuid, allocation, now,
			); err != nil {
				return fmt.Errorf("failed to insert allocation for subnet %d: %w", netuid, err)
			}
		}

		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO strategy_meta (key, value) VALUES (?, ?)",
			lastRebalanceKey, state.LastRebalance.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("failed to store last rebalance: %w", err)
		}

		return nil
	})
}

// LogDecision appends one rebalance decision to the audit log. The proposed
// allocation map travels as a msgpack blob.
func (r *Repository) LogDecision(id string, decision domain.RebalanceDecision, proposed domain.AllocationMap) error {
	blob, err := msgpack.Marshal(proposed)
	if err != nil {
		return fmt.Errorf("failed to encode proposed allocation: %w", err)
	}

	accepted := 0
	if decision.Accepted {
		accepted = 1
	}

	_, err = r.db.Exec(
		"INSERT INTO rebalance_log (id, timestamp, accepted, max_diff, reason, proposed) VALUES (?, ?, ?, ?, ?, ?)",
		id, decision.Timestamp.UTC().Format(time.RFC3339), accepted, decision.MaxDiff, decision.Reason, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rebalance log entry: %w", err)
	}

	return nil
}

// DecisionRecord is one row of the rebalance audit log.
type DecisionRecord struct {
	ID        string               `json:"id"`
	Timestamp time.Time            `json:"timestamp"`
	Accepted  bool                 `json:"accepted"`
	MaxDiff   float64              `json:"max_diff"`
	Reason    string               `json:"reason"`
	Proposed  domain.AllocationMap `json:"proposed"`
}

// RecentDecisions returns the newest audit log entries, newest first.
func (r *Repository) RecentDecisions(limit int) ([]DecisionRecord, error) {
	rows, err := r.db.Query(
		"SELECT id, timestamp, accepted, max_diff, reason, proposed FROM rebalance_log ORDER BY timestamp DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance log: %w", err)
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var ts string
		var accepted int
		var blob []byte

		if err := rows.Scan(&rec.ID, &ts, &accepted, &rec.MaxDiff, &rec.Reason, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan rebalance log row: %w", err)
		}

		rec.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("invalid rebalance log timestamp %q: %w", ts, err)
		}
		rec.Accepted = accepted != 0
		if err := msgpack.Unmarshal(blob, &rec.Proposed); err != nil {
			return nil, fmt.Errorf("failed to decode proposed allocation: %w", err)
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rebalance log: %w", err)
	}

	return records, nil
}
