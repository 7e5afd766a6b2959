// Package scheduler enqueues the delayed dispatcher callbacks and the
// periodic maintenance jobs on an asynq queue backed by Redis.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// TypeCallback is the asynq task type of a delayed dispatcher callback.
const TypeCallback = "notifications:callback"

// Dispatcher callback paths served by the HTTP process.
const (
	ReactionBatchPath = "/tasks/reaction-batches"
	TagBatchPath      = "/tasks/tag-batches"
)

// CallbackTask names the dispatcher endpoint to call and the batch it should
// process. CycleID makes the task unique per batch cycle.
type CallbackTask struct {
	Path    string `json:"path"`
	BatchID string `json:"batchId"`
	CycleID string `json:"cycleId"`
}

// TaskID is the queue-wide identifier of the task. Enqueueing the same cycle
// twice is rejected by the queue.
func (t CallbackTask) TaskID() string {
	kind := strings.Trim(strings.ReplaceAll(t.Path, "/", "-"), "-")
	return fmt.Sprintf("%s:%s:%s", kind, t.BatchID, t.CycleID)
}

type Scheduler struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

func New(client *asynq.Client, queue string, maxRetry int) *Scheduler {
	return &Scheduler{client: client, queue: queue, maxRetry: maxRetry}
}

// ScheduleNotificationTask enqueues a callback to run after delay. A task
// already enqueued for the same batch cycle counts as success.
func (s *Scheduler) ScheduleNotificationTask(ctx context.Context, task CallbackTask, delay time.Duration) error {
	if task.Path == "" || task.BatchID == "" {
		return errors.New("callback task requires a path and a batch id")
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := s.client.EnqueueContext(ctx, asynq.NewTask(TypeCallback, payload),
		asynq.Queue(s.queue),
		asynq.TaskID(task.TaskID()),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(s.maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		logrus.WithField("task_id", task.TaskID()).Debug("callback already scheduled for this cycle")
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue callback %s: %w", task.TaskID(), err)
	}

	logrus.WithFields(logrus.Fields{
		"task_id":  info.ID,
		"path":     task.Path,
		"batch_id": task.BatchID,
		"run_at":   info.NextProcessAt,
	}).Info("Scheduled notification callback")
	return nil
}
