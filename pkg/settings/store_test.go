package settings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLStore_FindSettingAbsent(t *testing.T) {
	store := newTestStore(t)

	s, err := store.FindSetting(context.Background(), ScopeUser, 1, CategoryWorkflow)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestSQLStore_UpsertAndFind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	actor := int64(9)
	s := &Setting{Scope: ScopeProject, OwnerID: 4, Category: CategoryDependencies,
		Value: json.RawMessage(`{"autoBlockTasks":true}`), Enabled: true, UpdatedBy: &actor}
	require.NoError(t, store.Upsert(ctx, s))
	require.NotZero(t, s.ID)

	got, err := store.FindSetting(ctx, ScopeProject, 4, CategoryDependencies)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"autoBlockTasks":true}`, string(got.Value))
	assert.True(t, got.Enabled)
	assert.Equal(t, int64(9), *got.UpdatedBy)
	assert.False(t, got.UpdatedAt.IsZero())

	// same key replaces in place
	s2 := &Setting{Scope: ScopeProject, OwnerID: 4, Category: CategoryDependencies,
		Value: json.RawMessage(`{"autoBlockTasks":false}`), Enabled: false}
	require.NoError(t, store.Upsert(ctx, s2))
	assert.Equal(t, s.ID, s2.ID)

	got, err = store.FindSetting(ctx, ScopeProject, 4, CategoryDependencies)
	require.NoError(t, err)
	assert.JSONEq(t, `{"autoBlockTasks":false}`, string(got.Value))
	assert.False(t, got.Enabled)
	assert.Nil(t, got.UpdatedBy)

	// other owners and scopes are separate rows
	other, err := store.FindSetting(ctx, ScopeProject, 5, CategoryDependencies)
	require.NoError(t, err)
	assert.Nil(t, other)
	other, err = store.FindSetting(ctx, ScopeUser, 4, CategoryDependencies)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSQLStore_SetEnabled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	put(t, store, ScopeProject, 2, CategoryWorkflow, `{"allowReopen":false}`, true)

	got, err := store.SetEnabled(ctx, 2, CategoryWorkflow, false, int64Ptr(3))
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.JSONEq(t, `{"allowReopen":false}`, string(got.Value))

	_, err = store.SetEnabled(ctx, 2, CategoryAppearance, false, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	put(t, store, ScopeUser, 2, CategoryAppearance, `{}`, true)
	_, err = store.SetEnabled(ctx, 2, CategoryAppearance, false, nil)
	assert.ErrorIs(t, err, ErrNotFound, "only project settings can be toggled")
}

func TestSQLStore_ListAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	put(t, store, ScopeUser, 1, CategoryWorkflow, `{"a":1}`, true)
	put(t, store, ScopeUser, 1, CategoryAppearance, `{"theme":"dark"}`, true)
	put(t, store, ScopeUser, 2, CategoryAppearance, `{"theme":"light"}`, true)

	list, err := store.List(ctx, ScopeUser, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, CategoryAppearance, list[0].Category)
	assert.Equal(t, CategoryWorkflow, list[1].Category)

	removed, err := store.Delete(ctx, ScopeUser, 1, CategoryAppearance)
	require.NoError(t, err)
	assert.JSONEq(t, `{"theme":"dark"}`, string(removed.Value))

	_, err = store.Delete(ctx, ScopeUser, 1, CategoryAppearance)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err = store.List(ctx, ScopeUser, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLStore_FindSettingQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, scope").
		WithArgs("global", int64(0), CategoryWorkflow).
		WillReturnError(errors.New("connection refused"))

	_, err = NewSQLStore(db).FindSetting(context.Background(), ScopeGlobal, 0, CategoryWorkflow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to find global setting")
	assert.NoError(t, mock.ExpectationsWereMet())
}
