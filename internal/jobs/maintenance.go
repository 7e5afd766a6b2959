package jobs

import (
	"context"
	"time"

	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/notify"
	"github.com/anonto42/flick/backend/internal/repositories"
	"github.com/anonto42/flick/backend/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// ReceiptSweepJob reconciles pending push receipts.
func ReceiptSweepJob(sweeper *notify.ReceiptSweeper, interval time.Duration) Job {
	return Job{
		Type:     scheduler.TypeReceiptSweep,
		Interval: interval,
		Run: func(ctx context.Context) error {
			_, err := sweeper.Sweep(ctx)
			return err
		},
	}
}

// BatchCleanupJob deletes reaction and tag batches untouched for longer
// than retention, whatever their status.
func BatchCleanupJob(batches repositories.BatchRepository, retention, interval time.Duration) Job {
	return Job{
		Type:     scheduler.TypeBatchCleanup,
		Interval: interval,
		Run: func(ctx context.Context) error {
			cutoff := time.Now().Add(-retention)
			for _, collection := range []string{models.ReactionBatchesCollection, models.TagBatchesCollection} {
				n, err := batches.DeleteStale(ctx, collection, cutoff)
				if err != nil {
					return err
				}
				logrus.WithFields(logrus.Fields{"collection": collection, "deleted": n}).Info("cleaned up stale batches")
			}
			return nil
		},
	}
}

// NotificationRetentionJob deletes in-app notifications older than retention.
func NotificationRetentionJob(records repositories.NotificationRepository, retention, interval time.Duration) Job {
	return Job{
		Type:     scheduler.TypeNotificationRetention,
		Interval: interval,
		Run: func(ctx context.Context) error {
			n, err := records.DeleteOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			logrus.WithField("deleted", n).Info("pruned old notifications")
			return nil
		},
	}
}
