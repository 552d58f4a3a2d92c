// Package market provides access to historical subnet time-series data.
package market

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/subnet-sentinel/internal/domain"
	"github.com/rs/zerolog"
)

// Repository reads and writes the subnet_daily table in market.db.
// It is the time-series provider for the allocation engine: an empty result
// set means "no metrics", never an error.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new market data repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "market").Logger(),
	}
}

// GetSeries fetches all subnet series within [from, to], keyed by netuid.
// Each series is chronologically sorted. Dates need not be contiguous.
func (r *Repository) GetSeries(from, to time.Time) (map[int][]domain.TimeSeriesPoint, error) {
	query := `
		SELECT netuid, date, price, emission, weight, tao_in, alpha_in
		FROM subnet_daily
		WHERE date >= ? AND date <= ?
		ORDER BY netuid, date
	`

	rows, err := r.db.Query(query, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query subnet series: %w", err)
	}
	defer rows.Close()

	series := make(map[int][]domain.TimeSeriesPoint)
	for rows.Next() {
		var p domain.TimeSeriesPoint
		var dateUnix int64

		if err := rows.Scan(&p.NetUID, &dateUnix, &p.Price, &p.Emission, &p.Weight, &p.TaoIn, &p.AlphaIn); err != nil {
			return nil, fmt.Errorf("failed to scan subnet daily row: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()

		series[p.NetUID] = append(series[p.NetUID], p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subnet series: %w", err)
	}

	return series, nil
}

// GetSubnetSeries fetches one subnet's series within [from, to], oldest first.
func (r *Repository) GetSubnetSeries(netuid int, from, to time.Time) ([]domain.TimeSeriesPoint, error) {
	query := `
		SELECT netuid, date, price, emission, weight, tao_in, alpha_in
		FROM subnet_daily
		WHERE netuid = ? AND date >= ? AND date <= ?
		ORDER BY date
	`

	rows, err := r.db.Query(query, netuid, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query subnet %d series: %w", netuid, err)
	}
	defer rows.Close()

	var points []domain.TimeSeriesPoint
	for rows.Next() {
		var p domain.TimeSeriesPoint
		var dateUnix int64

		if err := rows.Scan(&p.NetUID, &dateUnix, &p.Price, &p.Emission, &p.Weight, &p.TaoIn, &p.AlphaIn); err != nil {
			return nil, fmt.Errorf("failed to scan subnet daily row: %w", err)
		}
		p.Date = time.Unix(dateUnix, 0).UTC()

		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subnet %d series: %w", netuid, err)
	}

	return points, nil
}

// UpsertPoints writes time-series points in a single transaction, replacing
// any existing row for the same (netuid, date). Used by sync tooling and tests.
func (r *Repository) UpsertPoints(points []domain.TimeSeriesPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO subnet_daily (netuid, date, price, emission, weight, tao_in, alpha_in)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		date := p.Date.UTC().Truncate(24 * time.Hour)
		if _, err := stmt.Exec(p.NetUID, date.Unix(), p.Price, p.Emission, p.Weight, p.TaoIn, p.AlphaIn); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert point for subnet %d: %w", p.NetUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}

	r.log.Debug().Int("points", len(points)).Msg("Upserted subnet daily points")
	return nil
}

// LatestDate returns the most recent observation date in the table, or the
// zero time when the table is empty.
func (r *Repository) LatestDate() (time.Time, error) {
	var dateUnix sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(date) FROM subnet_daily").Scan(&dateUnix); err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest date: %w", err)
	}
	if !dateUnix.Valid {
		return time.Time{}, nil
	}
	return time.Unix(dateUnix.Int64, 0).UTC(), nil
}

// CountSubnets returns the number of distinct subnets with data in [from, to].
func (r *Repository) CountSubnets(from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(DISTINCT netuid) FROM subnet_daily WHERE date >= ? AND date <= ?",
		from.Unix(), to.Unix(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subnets: %w", err)
	}
	return count, nil
}
