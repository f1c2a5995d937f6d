package settings

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tasklane/pkg/activity"
)

func newTestService(t *testing.T) (*Service, *SQLStore, *recordingActivity) {
	t.Helper()
	store := newTestStore(t)
	events := &recordingActivity{}
	return NewService(store, EmbeddedDefaults(), events, nil), store, events
}

func TestService_Put(t *testing.T) {
	svc, store, events := newTestService(t)
	ctx := context.Background()

	s, err := svc.Put(ctx, 7, ScopeProject, 3, CategoryWorkflow, json.RawMessage(`{"allowReopen":false}`), false)
	require.NoError(t, err)
	assert.False(t, s.Enabled)
	assert.Equal(t, int64(7), *s.UpdatedBy)

	got, err := store.FindSetting(ctx, ScopeProject, 3, CategoryWorkflow)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	// enabled is meaningless outside project scope
	s, err = svc.Put(ctx, 7, ScopeUser, 7, CategoryWorkflow, json.RawMessage(`{}`), false)
	require.NoError(t, err)
	assert.True(t, s.Enabled)

	// global is always owner 0
	s, err = svc.Put(ctx, 7, ScopeGlobal, 42, CategoryWorkflow, json.RawMessage(`{}`), true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), s.OwnerID)

	require.Len(t, events.events, 3)
	first := events.events[0]
	assert.Equal(t, activity.EventTypeSettingUpdate, first.EventType)
	assert.Equal(t, activity.ResourceTypeSetting, first.ResourceType)
	assert.Equal(t, int64(3), *first.ProjectID)
	assert.Nil(t, first.Changes.Before)
	assert.Nil(t, events.events[1].ProjectID)
}

func TestService_PutValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Put(ctx, 1, ScopeUser, 1, "billing", json.RawMessage(`{}`), true)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	for _, bad := range []string{``, `null`, `[]`, `3`, `"dark"`, `{broken`} {
		_, err = svc.Put(ctx, 1, ScopeUser, 1, CategoryAppearance, json.RawMessage(bad), true)
		assert.ErrorIs(t, err, ErrInvalidValue, bad)
	}

	_, err = svc.Put(ctx, 1, Scope("team"), 1, CategoryAppearance, json.RawMessage(`{}`), true)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestService_SetEnabledAndDelete(t *testing.T) {
	svc, _, events := newTestService(t)
	ctx := context.Background()

	_, err := svc.SetEnabled(ctx, 1, 3, CategoryDependencies, false)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Put(ctx, 1, ScopeProject, 3, CategoryDependencies, json.RawMessage(`{"autoBlockTasks":true}`), true)
	require.NoError(t, err)

	s, err := svc.SetEnabled(ctx, 1, 3, CategoryDependencies, false)
	require.NoError(t, err)
	assert.False(t, s.Enabled)
	s, err = svc.SetEnabled(ctx, 1, 3, CategoryDependencies, true)
	require.NoError(t, err)
	assert.True(t, s.Enabled)

	require.NoError(t, svc.Delete(ctx, 1, ScopeProject, 3, CategoryDependencies))
	assert.ErrorIs(t, svc.Delete(ctx, 1, ScopeProject, 3, CategoryDependencies), ErrNotFound)

	var types []activity.EventType
	for _, e := range events.events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []activity.EventType{
		activity.EventTypeSettingUpdate,
		activity.EventTypeSettingDisable,
		activity.EventTypeSettingEnable,
		activity.EventTypeSettingDelete,
	}, types)
	assert.Nil(t, events.events[3].Changes.After)
}

func TestService_ActivityFailureIsNotFatal(t *testing.T) {
	svc, _, events := newTestService(t)
	events.err = errors.New("sink down")

	_, err := svc.Put(context.Background(), 1, ScopeUser, 1, CategoryAppearance, json.RawMessage(`{"theme":"dark"}`), true)
	assert.NoError(t, err)
}

func TestService_WritesAreVisibleToResolver(t *testing.T) {
	svc, store, _ := newTestService(t)
	r := newTestResolver(t, store)
	ctx := context.Background()

	_, err := svc.Put(ctx, 1, ScopeProject, 8, CategoryWorkflow, json.RawMessage(`{"allowReopen":false}`), true)
	require.NoError(t, err)
	got, err := r.Resolve(ctx, CategoryWorkflow, 2, int64Ptr(8))
	require.NoError(t, err)
	assert.Equal(t, SourceProject, got.Source)

	_, err = svc.SetEnabled(ctx, 1, 8, CategoryWorkflow, false)
	require.NoError(t, err)
	got, err = r.Resolve(ctx, CategoryWorkflow, 2, int64Ptr(8))
	require.NoError(t, err)
	assert.Equal(t, SourceSystem, got.Source)
	assert.False(t, got.Enabled)
}
