package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/tasklane/pkg/observability"
)

// RetentionJob prunes old activity events on a cron schedule.
type RetentionJob struct {
	store   Store
	policy  RetentionPolicy
	logger  *observability.Logger
	metrics *observability.Metrics
	timeout time.Duration
	cron    *cron.Cron
}

// NewRetentionJob schedules Cleanup with policy on schedule (standard
// five-field cron syntax). metrics may be nil.
func NewRetentionJob(store Store, policy RetentionPolicy, schedule string, logger *observability.Logger, metrics *observability.Metrics) (*RetentionJob, error) {
	if policy.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max age must be positive")
	}

	job := &RetentionJob{
		store:   store,
		policy:  policy,
		logger:  logger.WithField("component", "activity_retention"),
		metrics: metrics,
		timeout: 5 * time.Minute,
		cron:    cron.New(),
	}

	if _, err := job.cron.AddFunc(schedule, job.run); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return job, nil
}

// Start starts the scheduler in its own goroutine.
func (j *RetentionJob) Start() {
	j.cron.Start()
	j.logger.WithField("max_age", j.policy.MaxAge.String()).Info("activity retention job started")
}

// Stop stops the scheduler and waits for a running cleanup to finish or ctx to end.
func (j *RetentionJob) Stop(ctx context.Context) error {
	select {
	case <-j.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce runs a single cleanup pass.
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	deleted, err := j.store.Cleanup(ctx, j.policy)
	if err != nil {
		return 0, err
	}
	if j.metrics != nil {
		j.metrics.ActivityEventsPruned.Add(float64(deleted))
	}
	return deleted, nil
}

func (j *RetentionJob) run() {
	defer observability.RecoverPanic(j.logger, "activity retention")

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	deleted, err := j.RunOnce(ctx)
	if err != nil {
		j.logger.WithError(err).Error("activity cleanup failed")
		return
	}
	j.logger.WithField("deleted", deleted).Info("activity cleanup completed")
}
