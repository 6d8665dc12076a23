package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/aegis-screener/internal/contracts"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Pruner deletes rows created before cutoff.
// *selection.Repository and *quality.Repository implement it.
type Pruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CachePurger drops cached results of superseded data versions. *redis.VersionedCache implements it.
type CachePurger interface {
	Purge(ctx context.Context, currentVersion string) (int, error)
}

// RetentionJob prunes old screening runs and quality reports, and purges the
// result cache of entries keyed to an outdated data version
type RetentionJob struct {
	pruners   map[string]Pruner
	cache     CachePurger
	versions  contracts.VersionSource
	retention time.Duration
	schedule  string
	now       func() time.Time
	logger    *logger.Logger
}

// NewRetentionJob creates a new retention job. cache and versions may be nil.
func NewRetentionJob(
	pruners map[string]Pruner,
	cache CachePurger,
	versions contracts.VersionSource,
	retentionDays int,
	schedule string,
	log *logger.Logger,
) *RetentionJob {
	return &RetentionJob{
		pruners:   pruners,
		cache:     cache,
		versions:  versions,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		schedule:  schedule,
		now:       time.Now,
		logger:    log,
	}
}

// Name returns the job name
func (j *RetentionJob) Name() string {
	return "retention"
}

// Schedule returns the cron schedule
func (j *RetentionJob) Schedule() string {
	return j.schedule
}

// Run executes the pruning. Every target is attempted even if an earlier one fails.
func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.retention)
	fields := map[string]interface{}{"cutoff": cutoff.Format(time.RFC3339)}

	var errs []error
	for name, p := range j.pruners {
		n, err := p.DeleteBefore(ctx, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("prune %s: %w", name, err))
			continue
		}
		fields[name] = n
	}

	if j.cache != nil && j.versions != nil {
		version, err := j.versions.DataVersion(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("data version: %w", err))
		} else {
			n, err := j.cache.Purge(ctx, version)
			if err != nil {
				errs = append(errs, fmt.Errorf("purge cache: %w", err))
			}
			fields["cache_purged"] = n
		}
	}

	j.logger.WithFields(fields).Info("Retention maintenance completed")
	return errors.Join(errs...)
}
