package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/tasklane/pkg/observability"
)

// sharedLoadTimeout bounds a store load shared by concurrent callers.
const sharedLoadTimeout = 10 * time.Second

const (
	resultGranted = "granted"
	resultDenied  = "denied"
	resultError   = "error"
)

// Checker answers permission questions for a user. Implementations fail
// closed: a check that cannot complete returns false.
type Checker interface {
	HasPermission(ctx context.Context, userID int64, key string, scopeID *int64) bool
	HasAnyPermission(ctx context.Context, userID int64, keys []string, scopeID *int64) bool
}

// Resolver decides whether a user's role assignments grant a permission.
//
// There is no role-name shortcut here. Callers that want one apply it
// separately (see AllowRoleBypass on Middleware).
type Resolver struct {
	store   AssignmentReader
	cache   PermissionCache
	logger  *observability.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
	flight  singleflight.Group
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache sets the permission cache. The default is NoopCache.
func WithCache(cache PermissionCache) ResolverOption {
	return func(r *Resolver) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithLogger sets the logger used for failed checks.
func WithLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics records check outcomes and cache hits on metrics.
func WithMetrics(metrics *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = metrics }
}

// NewResolver creates a resolver reading assignments from store.
func NewResolver(store AssignmentReader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:  store,
		cache:  NoopCache{},
		logger: observability.NopLogger(),
		tracer: otel.Tracer("github.com/platinummonkey/tasklane/pkg/rbac"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HasPermission reports whether any role the user holds in scope grants key.
// A nil scopeID checks unscoped and global assignments only. Any failure
// yields false.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, key string, scopeID *int64) (granted bool) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "rbac.HasPermission", trace.WithAttributes(
		attribute.Int64("tasklane.user_id", userID),
		attribute.String("tasklane.permission", key),
		attribute.Bool("tasklane.scoped", scopeID != nil),
	))
	result := resultDenied
	defer func() {
		if rec := recover(); rec != nil {
			granted = false
			result = resultError
			span.SetStatus(codes.Error, "panic")
			r.logger.WithFields(map[string]interface{}{
				"panic":      fmt.Sprint(rec),
				"user_id":    userID,
				"permission": key,
			}).Error("permission check panicked")
		}
		span.SetAttributes(attribute.String("tasklane.result", result))
		span.End()
		r.observe(result, time.Since(start))
	}()

	if userID <= 0 || key == "" {
		return false
	}

	perms, err := r.permissionSet(ctx, userID, NewScopeFilter(scopeID))
	if err != nil {
		result = resultError
		span.RecordError(err)
		span.SetStatus(codes.Error, "permission lookup failed")
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"user_id":    userID,
			"permission": key,
			"scope_id":   scopeLogValue(scopeID),
		}).Error("permission check failed, denying")
		return false
	}

	if containsKey(perms, key) {
		result = resultGranted
		return true
	}
	return false
}

// HasAnyPermission reports whether the user holds at least one of keys.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID int64, keys []string, scopeID *int64) bool {
	for _, k := range keys {
		if r.HasPermission(ctx, userID, k, scopeID) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every key. An empty key
// list is not a grant.
func (r *Resolver) HasAllPermissions(ctx context.Context, userID int64, keys []string, scopeID *int64) bool {
	if len(keys) == 0 {
		return false
	}
	for _, k := range keys {
		if !r.HasPermission(ctx, userID, k, scopeID) {
			return false
		}
	}
	return true
}

// EffectivePermissions returns the sorted keys the user holds in scope.
// Unlike HasPermission it reports failures.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64, scopeID *int64) ([]string, error) {
	perms, err := r.permissionSet(ctx, userID, NewScopeFilter(scopeID))
	if err != nil {
		return nil, err
	}
	return append([]string{}, perms...), nil
}

// permissionSet returns the normalized key set for (userID, filter), going
// through the cache when one is configured.
func (r *Resolver) permissionSet(ctx context.Context, userID int64, filter ScopeFilter) ([]string, error) {
	gen, err := r.cache.Generation(ctx, userID)
	if err != nil {
		// without a generation the cache cannot be trusted; go to the store
		r.logger.WithError(err).WithField("cache", r.cache.Name()).Warn("permission cache generation read failed")
		return r.load(ctx, userID, filter)
	}

	perms, ok, err := r.cache.Get(ctx, userID, gen, filter)
	switch {
	case err != nil:
		r.logger.WithError(err).WithField("cache", r.cache.Name()).Warn("permission cache read failed")
	case ok:
		r.cacheHit()
		return perms, nil
	}
	r.cacheMiss()

	// shared loads ignore any one caller's cancellation; each caller stops
	// waiting when its own context ends
	ch := r.flight.DoChan(entryKey(userID, gen, filter), func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		loaded, err := r.loadRecovered(loadCtx, userID, filter)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Set(loadCtx, userID, gen, filter, loaded); err != nil {
			r.logger.WithError(err).WithField("cache", r.cache.Name()).Warn("permission cache write failed")
		}
		return loaded, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// loadRecovered turns a store panic into an error. DoChan re-raises panics
// on a goroutine no caller can recover.
func (r *Resolver) loadRecovered(ctx context.Context, userID int64, filter ScopeFilter) (perms []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("load role assignments for user %d: panic: %v", userID, rec)
		}
	}()
	return r.load(ctx, userID, filter)
}

func (r *Resolver) load(ctx context.Context, userID int64, filter ScopeFilter) ([]string, error) {
	assignments, err := r.store.FindRoleAssignments(ctx, userID, filter)
	if err != nil {
		if r.metrics != nil {
			r.metrics.StoreErrorsTotal.WithLabelValues("rbac", "find_role_assignments").Inc()
		}
		return nil, fmt.Errorf("load role assignments for user %d: %w", userID, err)
	}

	var keys []string
	for _, a := range assignments {
		// only assignments in scope count, whatever the store returned
		if !filter.Matches(a) {
			continue
		}
		keys = append(keys, a.Permissions...)
	}
	return normalizeKeys(keys), nil
}

func (r *Resolver) observe(result string, elapsed time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.PermissionChecksTotal.WithLabelValues(result).Inc()
	r.metrics.PermissionCheckDuration.Observe(elapsed.Seconds())
}

func (r *Resolver) cacheHit() {
	if r.metrics != nil {
		r.metrics.CacheHitsTotal.WithLabelValues(r.cache.Name()).Inc()
	}
}

func (r *Resolver) cacheMiss() {
	if r.metrics != nil {
		r.metrics.CacheMissesTotal.WithLabelValues(r.cache.Name()).Inc()
	}
}

// containsKey searches a normalized (sorted) key set.
func containsKey(sorted []string, key string) bool {
	i := sort.SearchStrings(sorted, key)
	return i < len(sorted) && sorted[i] == key
}

func scopeLogValue(scopeID *int64) interface{} {
	if scopeID == nil {
		return nil
	}
	return *scopeID
}
