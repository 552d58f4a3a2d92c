package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string) *DB {
	t.Helper()

	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), name+".db"),
		Name: name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_MigratesSchemas(t *testing.T) {
	market := newTestDB(t, "market")
	var count int
	require.NoError(t, market.Conn().QueryRow("SELECT COUNT(*) FROM subnet_daily").Scan(&count))
	assert.Zero(t, count)

	strategy := newTestDB(t, "strategy")
	require.NoError(t, strategy.Conn().QueryRow("SELECT COUNT(*) FROM active_strategy").Scan(&count))
	require.NoError(t, strategy.Conn().QueryRow("SELECT COUNT(*) FROM rebalance_log").Scan(&count))
}

func TestNew_MigrationIsIdempotent(t *testing.T) {
	db := newTestDB(t, "strategy")
	assert.NoError(t, db.Migrate(), "re-applying the schema must not fail")
}

func TestWithTransaction_CommitsOnSuccess(t *testing.T) {
	db := newTestDB(t, "strategy")

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO strategy_meta (key, value) VALUES ('k', 'v')")
		return err
	})
	require.NoError(t, err)

	var value string
	require.NoError(t, db.Conn().QueryRow("SELECT value FROM strategy_meta WHERE key = 'k'").Scan(&value))
	assert.Equal(t, "v", value)
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t, "strategy")

	boom := errors.New("boom")
	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, execErr := tx.Exec("INSERT INTO strategy_meta (key, value) VALUES ('k', 'v')"); execErr != nil {
			return execErr
		}
		return boom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM strategy_meta").Scan(&count))
	assert.Zero(t, count, "the insert must have been rolled back")
}

func TestWithTransaction_RecoversFromPanic(t *testing.T) {
	db := newTestDB(t, "strategy")

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestWithTransaction_NilDB(t *testing.T) {
	assert.Error(t, WithTransaction(nil, func(tx *sql.Tx) error { return nil }))
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t, "market")
	ctx := context.Background()

	assert.NoError(t, db.HealthCheck(ctx))
	assert.NoError(t, db.QuickCheck(ctx))
}

func TestWALCheckpoint(t *testing.T) {
	db := newTestDB(t, "market")

	assert.NoError(t, db.WALCheckpoint("TRUNCATE"))
	assert.NoError(t, db.WALCheckpoint(""), "empty mode defaults to TRUNCATE")
}
