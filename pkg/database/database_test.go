package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgetMigrations = []Migration{
	{
		Version:     2,
		Description: "index widgets",
		Postgres:    `CREATE INDEX idx_widgets_name ON widgets(name)`,
		SQLite:      `CREATE INDEX idx_widgets_name ON widgets(name)`,
	},
	{
		Version:     1,
		Description: "create widgets",
		Postgres:    `CREATE TABLE widgets (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL UNIQUE)`,
		SQLite:      `CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)`,
	},
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	require.Error(t, err)
}

func TestMigrate_AppliesInOrderOnce(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	n, err := Migrate(ctx, db, DriverSQLite, "widgets", widgetMigrations)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = Migrate(ctx, db, DriverSQLite, "widgets", widgetMigrations)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second run is a no-op")

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE component = $1`, "widgets").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	broken := []Migration{{Version: 1, Description: "broken", SQLite: `CREATE TABLE oops (`}}
	_, err := Migrate(ctx, db, DriverSQLite, "broken", broken)
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE component = $1`, "broken").Scan(&count))
	assert.Zero(t, count)
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := Migrate(ctx, db, DriverSQLite, "widgets", widgetMigrations)
	require.NoError(t, err)

	t.Run("commits on success", func(t *testing.T) {
		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO widgets (name) VALUES ($1)`, "flange")
			return err
		})
		require.NoError(t, err)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `INSERT INTO widgets (name) VALUES ($1)`, "gear"); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})

	var names int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM widgets`).Scan(&names))
	assert.Equal(t, 1, names)
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	_, err := Migrate(ctx, db, DriverSQLite, "widgets", widgetMigrations)
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO widgets (name) VALUES ($1)`, "cog")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO widgets (name) VALUES ($1)`, "cog")
	require.Error(t, err)

	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
}
