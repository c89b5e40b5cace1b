// Package retention removes audit history older than the retention window.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

// AuditPurger deletes rows whose column is older than cutoff.
type AuditPurger interface {
	DeleteBefore(ctx context.Context, column string, cutoff time.Time) (int64, error)
}

type PurgeAuditLogsJob struct {
	purger AuditPurger
	days   int
	now    func() time.Time
	logger logger.Interface
}

func NewPurgeAuditLogsJob(purger AuditPurger, days int, log logger.Interface) (*PurgeAuditLogsJob, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &PurgeAuditLogsJob{
		purger: purger,
		days:   days,
		now:    time.Now,
		logger: log.Named("retention"),
	}, nil
}

// Cutoff is the oldest change time that is kept.
func (j *PurgeAuditLogsJob) Cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.days)
}

func (j *PurgeAuditLogsJob) Execute(ctx context.Context) (int, error) {
	cutoff := j.Cutoff()
	j.logger.Infow("purging audit logs", "before", cutoff)

	n, err := j.purger.DeleteBefore(ctx, "changed_at", cutoff)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
