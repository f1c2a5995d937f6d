package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Reader is the read side the resolver depends on.
type Reader interface {
	// FindSetting returns nil, nil when no setting is stored.
	FindSetting(ctx context.Context, scope Scope, ownerID int64, category string) (*Setting, error)
}

// Store is the full settings persistence interface.
type Store interface {
	Reader
	List(ctx context.Context, scope Scope, ownerID int64) ([]Setting, error)
	Upsert(ctx context.Context, s *Setting) error
	SetEnabled(ctx context.Context, projectID int64, category string, enabled bool, updatedBy *int64) (*Setting, error)
	Delete(ctx context.Context, scope Scope, ownerID int64, category string) (*Setting, error)
}

// SQLStore implements Store over the settings table.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLStore creates a store over db. The schema comes from Migrations.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

const settingColumns = `id, scope, owner_id, category, value, enabled, updated_at, updated_by`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSetting(row rowScanner) (*Setting, error) {
	var (
		s         Setting
		value     []byte
		updatedBy sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Scope, &s.OwnerID, &s.Category, &value, &s.Enabled, &s.UpdatedAt, &updatedBy); err != nil {
		return nil, err
	}
	s.Value = append([]byte(nil), value...)
	if updatedBy.Valid {
		s.UpdatedBy = &updatedBy.Int64
	}
	return &s, nil
}

// FindSetting implements Reader.
func (s *SQLStore) FindSetting(ctx context.Context, scope Scope, ownerID int64, category string) (*Setting, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+settingColumns+` FROM settings WHERE scope = $1 AND owner_id = $2 AND category = $3`,
		string(scope), ownerID, category)
	setting, err := scanSetting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s setting %q: %w", scope, category, err)
	}
	return setting, nil
}

// List returns every setting stored for one owner, ordered by category.
func (s *SQLStore) List(ctx context.Context, scope Scope, ownerID int64) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+settingColumns+` FROM settings WHERE scope = $1 AND owner_id = $2 ORDER BY category`,
		string(scope), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		setting, err := scanSetting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		out = append(out, *setting)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces the setting for (scope, owner, category) and
// fills in its ID and UpdatedAt.
func (s *SQLStore) Upsert(ctx context.Context, setting *Setting) error {
	setting.UpdatedAt = s.now().UTC()
	var updatedBy sql.NullInt64
	if setting.UpdatedBy != nil {
		updatedBy = sql.NullInt64{Int64: *setting.UpdatedBy, Valid: true}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO settings (scope, owner_id, category, value, enabled, updated_at, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (scope, owner_id, category) DO UPDATE SET
			value = excluded.value,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by
		RETURNING id`,
		string(setting.Scope), setting.OwnerID, setting.Category, string(setting.Value),
		setting.Enabled, setting.UpdatedAt, updatedBy,
	).Scan(&setting.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert setting: %w", err)
	}
	return nil
}

// SetEnabled toggles a project override without touching its value and
// returns the updated row.
func (s *SQLStore) SetEnabled(ctx context.Context, projectID int64, category string, enabled bool, updatedBy *int64) (*Setting, error) {
	var by sql.NullInt64
	if updatedBy != nil {
		by = sql.NullInt64{Int64: *updatedBy, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE settings SET enabled = $1, updated_at = $2, updated_by = $3
		WHERE scope = $4 AND owner_id = $5 AND category = $6`,
		enabled, s.now().UTC(), by, string(ScopeProject), projectID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to update setting: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.FindSetting(ctx, ScopeProject, projectID, category)
}

// Delete removes a setting and returns what was removed.
func (s *SQLStore) Delete(ctx context.Context, scope Scope, ownerID int64, category string) (*Setting, error) {
	existing, err := s.FindSetting(ctx, scope, ownerID, category)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE id = $1`, existing.ID); err != nil {
		return nil, fmt.Errorf("failed to delete setting: %w", err)
	}
	return existing, nil
}
