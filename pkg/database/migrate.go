package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Migration is one versioned schema change for a component. Postgres and
// SQLite carry the same change in each dialect.
type Migration struct {
	Version     int
	Description string
	Postgres    string
	SQLite      string
}

func (m Migration) statement(driver string) string {
	if driver == DriverSQLite {
		return m.SQLite
	}
	return m.Postgres
}

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		component VARCHAR(64) NOT NULL,
		version INTEGER NOT NULL,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL,
		PRIMARY KEY (component, version)
	)`

// Migrate applies the pending migrations of component in version order.
// Each migration runs in its own transaction together with its bookkeeping row.
func Migrate(ctx context.Context, db *sql.DB, driver, component string, migrations []Migration) (int, error) {
	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db, component)
	if err != nil {
		return 0, err
	}

	pending := make([]Migration, 0, len(migrations))
	for _, m := range migrations {
		if !applied[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Version < pending[j].Version })

	for _, m := range pending {
		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.statement(driver)); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (component, version, description, applied_at) VALUES ($1, $2, $3, $4)`,
				component, m.Version, m.Description, time.Now().UTC())
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("migration %s/%d (%s) failed: %w", component, m.Version, m.Description, err)
		}
	}

	return len(pending), nil
}

func appliedVersions(ctx context.Context, db *sql.DB, component string) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations WHERE component = $1`, component)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}
