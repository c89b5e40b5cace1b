// Package scheduler runs periodic maintenance jobs using gocron v2.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/go-co-op/gocron/v2"

	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

// DefaultRetentionCron runs audit retention daily at 02:00 UTC.
const DefaultRetentionCron = "0 2 * * *"

// BatchJob defines the interface for a scheduled batch processing job.
// Each Execute call processes a batch and returns the number of items processed.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// SchedulerManager owns one gocron scheduler. Cron expressions are
// evaluated in UTC.
type SchedulerManager struct {
	scheduler gocron.Scheduler
	logger    logger.Interface
	now       func() time.Time

	started   bool
	startedMu sync.RWMutex
}

func NewSchedulerManager(log logger.Interface) (*SchedulerManager, error) {
	if log == nil {
		log = logger.NewNop()
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	return &SchedulerManager{
		scheduler: scheduler,
		logger:    log.Named("scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// NextRun returns the first time after from that cronExpr fires.
func NextRun(cronExpr string, from time.Time) (time.Time, error) {
	if !gronx.IsValid(cronExpr) {
		return time.Time{}, fmt.Errorf("invalid cron expression: %q", cronExpr)
	}
	return gronx.NextTickAfter(cronExpr, from.UTC(), false)
}

// RegisterRetentionJob runs job on cronExpr, an empty expression meaning
// DefaultRetentionCron. A run that is still busy when the next one is due
// makes the next one wait.
func (m *SchedulerManager) RegisterRetentionJob(cronExpr string, timeout time.Duration, job BatchJob) error {
	if cronExpr == "" {
		cronExpr = DefaultRetentionCron
	}
	next, err := NextRun(cronExpr, m.now())
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	_, err = m.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			m.runBatch(ctx, "audit-retention", job)
		}),
		gocron.WithSingletonMode(gocron.LimitModeWait),
		gocron.WithTags("retention", "audit"),
		gocron.WithName("audit-retention"),
	)
	if err != nil {
		return fmt.Errorf("failed to register retention job: %w", err)
	}

	m.logger.Infow("registered retention job", "cron", cronExpr, "next_run", next)
	return nil
}

func (m *SchedulerManager) runBatch(ctx context.Context, name string, job BatchJob) {
	m.logger.Debugw("job started", "job", name)

	start := time.Now()
	count, err := job.Execute(ctx)
	if err != nil {
		m.logger.Errorw("job failed",
			"job", name,
			"error", err,
			"duration", time.Since(start),
		)
		return
	}

	m.logger.Infow("job completed",
		"job", name,
		"count", count,
		"duration", time.Since(start),
	)
}

// Start starts the scheduler and all registered jobs.
func (m *SchedulerManager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Infow("scheduler manager started", "job_count", len(m.scheduler.Jobs()))
}

// Stop gracefully stops the scheduler.
// It waits for all running jobs to complete before returning.
func (m *SchedulerManager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	m.logger.Infow("stopping scheduler manager")

	err := m.scheduler.Shutdown()
	m.started = false

	if err != nil {
		m.logger.Errorw("scheduler manager shutdown with error", "error", err)
		return err
	}

	m.logger.Infow("scheduler manager stopped")
	return nil
}

// IsStarted returns whether the scheduler is running.
func (m *SchedulerManager) IsStarted() bool {
	m.startedMu.RLock()
	defer m.startedMu.RUnlock()
	return m.started
}

// Jobs returns all registered jobs for inspection.
func (m *SchedulerManager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
