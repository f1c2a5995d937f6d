package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tasklane/pkg/activity"
)

type fixture struct {
	store    *SQLStore
	cache    PermissionCache
	resolver *Resolver
	admin    *Admin
	events   *recordingActivity
}

func newFixture(t *testing.T, cache PermissionCache) *fixture {
	t.Helper()
	store, _ := NewTestStore(t)
	events := &recordingActivity{}
	registry := DefaultRegistry()

	f := &fixture{
		store:    store,
		cache:    cache,
		resolver: NewResolver(store, WithCache(cache)),
		admin:    NewAdmin(store, registry, WithAdminCache(cache), WithActivityLogger(events)),
		events:   events,
	}
	_, err := f.admin.SeedSystemRoles(context.Background())
	require.NoError(t, err)
	return f
}

func (f *fixture) role(t *testing.T, name string) *Role {
	t.Helper()
	role, err := f.store.GetRoleByName(context.Background(), name)
	require.NoError(t, err)
	return role
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

func (r *recordingActivity) types() []activity.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]activity.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

// stubReader serves canned assignments or a canned error.
type stubReader struct {
	mu          sync.Mutex
	assignments []RoleAssignment
	err         error
	panicWith   interface{}
	calls       int
}

func (s *stubReader) FindRoleAssignments(_ context.Context, _ int64, _ ScopeFilter) ([]RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]RoleAssignment(nil), s.assignments...), nil
}

// brokenCache fails every operation except, optionally, Generation. Get
// hands back poison alongside its error.
type brokenCache struct {
	generationOK bool
	poison       []string
}

var errCacheDown = errors.New("cache down")

func (c brokenCache) Generation(context.Context, int64) (uint64, error) {
	if c.generationOK {
		return 0, nil
	}
	return 0, errCacheDown
}

func (c brokenCache) Get(context.Context, int64, uint64, ScopeFilter) ([]string, bool, error) {
	return c.poison, c.poison != nil, errCacheDown
}

func (brokenCache) Set(context.Context, int64, uint64, ScopeFilter, []string) error {
	return errCacheDown
}

func (brokenCache) InvalidateUser(context.Context, int64) error { return errCacheDown }

func (brokenCache) Name() string { return "broken" }

func int64Ptr(v int64) *int64 { return &v }

// hookedStore runs beforeHolders once, ahead of the first RoleHolders read.
type hookedStore struct {
	*SQLStore
	beforeHolders func()
	once          sync.Once
}

func (s *hookedStore) RoleHolders(ctx context.Context, roleID int64) ([]int64, error) {
	if s.beforeHolders != nil {
		s.once.Do(s.beforeHolders)
	}
	return s.SQLStore.RoleHolders(ctx, roleID)
}

// blockingReader holds every load until release is closed or the load's
// context ends. entered is closed by the first load.
type blockingReader struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	perms   []string
}

func newBlockingReader(perms ...string) *blockingReader {
	return &blockingReader{entered: make(chan struct{}), release: make(chan struct{}), perms: perms}
}

func (b *blockingReader) FindRoleAssignments(ctx context.Context, userID int64, _ ScopeFilter) ([]RoleAssignment, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []RoleAssignment{{ID: 1, UserID: userID, RoleID: 1, Permissions: b.perms}}, nil
}
