package settings

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tasklane/pkg/activity"
	"github.com/platinummonkey/tasklane/pkg/database"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = database.Migrate(ctx, db, database.DriverSQLite, Component, Migrations())
	require.NoError(t, err)
	return NewSQLStore(db)
}

func newTestResolver(t *testing.T, store Reader, opts ...ResolverOption) *Resolver {
	t.Helper()
	r, err := NewResolver(store, EmbeddedDefaults(), opts...)
	require.NoError(t, err)
	return r
}

func put(t *testing.T, store *SQLStore, scope Scope, owner int64, category, value string, enabled bool) {
	t.Helper()
	require.NoError(t, store.Upsert(context.Background(), &Setting{
		Scope:    scope,
		OwnerID:  owner,
		Category: category,
		Value:    json.RawMessage(value),
		Enabled:  enabled,
	}))
}

// stubReader serves settings from a map, or fails for one scope.
type stubReader struct {
	mu       sync.Mutex
	settings map[Scope]*Setting
	failOn   Scope
	calls    int
}

var errDBDown = errors.New("db down")

func (s *stubReader) FindSetting(_ context.Context, scope Scope, _ int64, _ string) (*Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if scope == s.failOn {
		return nil, errDBDown
	}
	return s.settings[scope], nil
}

type recordingActivity struct {
	mu     sync.Mutex
	events []*activity.Event
	err    error
}

func (r *recordingActivity) Log(_ context.Context, e *activity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingActivity) Close() error { return nil }

func int64Ptr(v int64) *int64 { return &v }
