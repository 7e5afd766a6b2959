package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/flick/backend/internal/scheduler"
	"github.com/anonto42/flick/backend/pkg/config"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver delayed batch callbacks and run the periodic jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, cfg)
		},
	}
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	w, err := startWorker(a)
	if err != nil {
		return err
	}
	<-ctx.Done()
	w.stop()
	return nil
}

type worker struct {
	server *asynq.Server
	cron   *asynq.Scheduler
}

// startWorker starts the asynq server that delivers callbacks and runs the
// periodic jobs, and the scheduler that enqueues their ticks.
func startWorker(a *app) (*worker, error) {
	queue := a.cfg.TaskQueue

	server := asynq.NewServer(a.redisOpt(), asynq.Config{
		Concurrency: a.cfg.WorkerConcurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      logrus.StandardLogger(),
	})

	mux := asynq.NewServeMux()
	mux.Handle(scheduler.TypeCallback, a.callbackDeliverer())
	a.runner.Register(mux)

	cron := asynq.NewScheduler(a.redisOpt(), &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   logrus.StandardLogger(),
	})
	if err := scheduler.RegisterPeriodic(cron, queue, a.runner.Periodic()); err != nil {
		return nil, err
	}

	if err := server.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start task server: %w", err)
	}
	if err := cron.Start(); err != nil {
		server.Shutdown()
		return nil, fmt.Errorf("failed to start periodic scheduler: %w", err)
	}

	logrus.WithField("queue", queue).Info("Worker started")
	return &worker{server: server, cron: cron}, nil
}

func (w *worker) stop() {
	logrus.Info("Stopping worker")
	w.cron.Shutdown()
	w.server.Shutdown()
}
