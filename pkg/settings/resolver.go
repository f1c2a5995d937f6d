package settings

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/tasklane/pkg/observability"
)

const instrumentationName = "github.com/platinummonkey/tasklane/pkg/settings"

// Resolver computes effective settings by walking the policy's chain over
// the user, project and global layers and the system defaults.
type Resolver struct {
	store    Reader
	defaults DefaultsProvider
	policy   Policy
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	counter  metric.Int64Counter
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) ResolverOption {
	return func(r *Resolver) { r.policy = p }
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// WithMetrics counts resolutions by category and source.
func WithMetrics(metrics *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = metrics }
}

// NewResolver creates a resolver over store and defaults.
func NewResolver(store Reader, defaults DefaultsProvider, opts ...ResolverOption) (*Resolver, error) {
	r := &Resolver{
		store:    store,
		defaults: defaults,
		policy:   DefaultPolicy(),
		logger:   observability.NopLogger(),
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.policy.Validate(defaults.Defaults()); err != nil {
		return nil, err
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"tasklane.settings.resolutions",
		metric.WithDescription("Settings resolutions by winning layer"),
		metric.WithUnit("{resolution}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create settings resolution counter: %w", err)
	}
	r.counter = counter
	return r, nil
}

// StepTrace records how one step of the chain evaluated.
type StepTrace struct {
	Step     string `json:"step"`
	Matched  bool   `json:"matched"`
	Selected bool   `json:"selected"`
	Reason   string `json:"reason"`
}

// Explanation is a resolution together with the evaluation of every step.
type Explanation struct {
	Result *ResolvedSetting `json:"result"`
	Steps  []StepTrace      `json:"steps"`
}

// Resolve returns the effective value of category for userID, within
// projectID when it is non-nil. Exactly one layer's value is returned,
// unmodified. Store failures wrap ErrStore; an unrecognized category is
// ErrUnknownCategory.
func (r *Resolver) Resolve(ctx context.Context, category string, userID int64, projectID *int64) (*ResolvedSetting, error) {
	exp, err := r.resolve(ctx, category, userID, projectID, false)
	if err != nil {
		return nil, err
	}
	return exp.Result, nil
}

// Explain resolves category like Resolve and also reports the outcome of
// every step in the chain.
func (r *Resolver) Explain(ctx context.Context, category string, userID int64, projectID *int64) (*Explanation, error) {
	return r.resolve(ctx, category, userID, projectID, true)
}

// ResolveAll resolves every recognized category, sorted by category.
func (r *Resolver) ResolveAll(ctx context.Context, userID int64, projectID *int64) ([]ResolvedSetting, error) {
	categories := r.defaults.Defaults().Categories()
	out := make([]ResolvedSetting, 0, len(categories))
	for _, category := range categories {
		resolved, err := r.Resolve(ctx, category, userID, projectID)
		if err != nil {
			return nil, err
		}
		out = append(out, *resolved)
	}
	return out, nil
}

func (r *Resolver) resolve(ctx context.Context, category string, userID int64, projectID *int64, explain bool) (*Explanation, error) {
	ctx, span := r.tracer.Start(ctx, "settings.Resolve", trace.WithAttributes(
		attribute.String("tasklane.settings.category", category),
		attribute.Int64("tasklane.user_id", userID),
		attribute.Bool("tasklane.scoped", projectID != nil),
	))
	defer span.End()

	def, ok := r.defaults.Defaults().Value(category)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownCategory, category)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	layers, err := r.loadLayers(ctx, category, userID, projectID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "settings lookup failed")
		r.logger.WithError(err).WithFields(map[string]interface{}{
			"category": category,
			"user_id":  userID,
		}).Error("settings resolution failed")
		return nil, err
	}
	layers.Default = def
	layers.UserOverridable = r.policy.UserOverridable[category]

	exp := &Explanation{}
	for _, step := range r.policy.Steps {
		value, source, matched, reason := step.Match(layers)
		selected := matched && exp.Result == nil
		if selected {
			exp.Result = &ResolvedSetting{
				Category: category,
				Value:    value,
				Source:   source,
				Enabled:  enabledFlag(layers),
			}
		}
		if explain {
			exp.Steps = append(exp.Steps, StepTrace{Step: step.Name, Matched: matched, Selected: selected, Reason: reason})
		} else if selected {
			break
		}
	}
	if exp.Result == nil {
		// only reachable with a custom chain that has no floor
		exp.Result = &ResolvedSetting{Category: category, Value: def, Source: SourceSystem, Enabled: enabledFlag(layers)}
	}

	span.SetAttributes(attribute.String("tasklane.settings.source", string(exp.Result.Source)))
	r.observe(ctx, category, exp.Result.Source)
	return exp, nil
}

// loadLayers reads the three stored layers concurrently. The chain only
// runs once all reads succeed, so ordering is the same as a sequential walk.
func (r *Resolver) loadLayers(ctx context.Context, category string, userID int64, projectID *int64) (Layers, error) {
	layers := Layers{Category: category}
	g, gctx := errgroup.WithContext(ctx)

	if userID > 0 {
		g.Go(func() error {
			s, err := r.find(gctx, ScopeUser, userID, category)
			layers.User = s
			return err
		})
	}
	if projectID != nil {
		g.Go(func() error {
			s, err := r.find(gctx, ScopeProject, *projectID, category)
			layers.Project = s
			return err
		})
	}
	g.Go(func() error {
		s, err := r.find(gctx, ScopeGlobal, 0, category)
		layers.Global = s
		return err
	})

	if err := g.Wait(); err != nil {
		return Layers{}, err
	}
	return layers, nil
}

func (r *Resolver) find(ctx context.Context, scope Scope, ownerID int64, category string) (*Setting, error) {
	s, err := r.store.FindSetting(ctx, scope, ownerID, category)
	if err != nil {
		if r.metrics != nil {
			r.metrics.StoreErrorsTotal.WithLabelValues("settings", "find_setting").Inc()
		}
		return nil, fmt.Errorf("%w: %s layer: %w", ErrStore, scope, err)
	}
	return s, nil
}

// enabledFlag reports the project record's flag whenever one exists, even
// when the chain skipped it; otherwise true.
func enabledFlag(l Layers) bool {
	if l.Project != nil {
		return l.Project.Enabled
	}
	return true
}

func (r *Resolver) observe(ctx context.Context, category string, source Source) {
	if r.metrics != nil {
		r.metrics.SettingsResolutionsTotal.WithLabelValues(category, string(source)).Inc()
	}
	r.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("source", string(source)),
	))
}
