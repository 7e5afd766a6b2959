package scheduler

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Periodic job task types, handled by the worker's job runner.
const (
	TypeReceiptSweep          = "jobs:receipt-sweep"
	TypeRevealSweep           = "jobs:reveal-sweep"
	TypeBatchCleanup          = "jobs:batch-cleanup"
	TypeNotificationRetention = "jobs:notification-retention"
)

// PeriodicJob is one cron entry.
type PeriodicJob struct {
	Type     string
	Interval time.Duration
}

// RegisterPeriodic adds an entry per job to the asynq scheduler. Each tick is
// unique for its interval so several schedulers never enqueue a tick twice.
func RegisterPeriodic(s *asynq.Scheduler, queue string, jobs []PeriodicJob) error {
	for _, job := range jobs {
		if job.Interval <= 0 {
			return fmt.Errorf("job %s: interval must be positive", job.Type)
		}
		spec := "@every " + job.Interval.String()
		entryID, err := s.Register(spec, asynq.NewTask(job.Type, nil),
			asynq.Queue(queue),
			asynq.MaxRetry(0),
			asynq.Unique(job.Interval),
		)
		if err != nil {
			return fmt.Errorf("register %s: %w", job.Type, err)
		}
		logrus.WithFields(logrus.Fields{
			"type":     job.Type,
			"spec":     spec,
			"entry_id": entryID,
		}).Info("Registered periodic job")
	}
	return nil
}
