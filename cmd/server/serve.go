package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/flick/backend/internal/handlers"
	"github.com/anonto42/flick/backend/internal/router"
	"github.com/anonto42/flick/backend/pkg/config"
	"github.com/anonto42/flick/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var embedWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve task callbacks, change events and the notification inbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, embedWorker)
		},
	}
	cmd.Flags().BoolVar(&embedWorker, "with-worker", false, "also run the task worker and periodic scheduler in this process")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, embedWorker bool) error {
	a, err := newApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := router.Migrate(a.db.Postgres); err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validators.NewValidator()
	config.SetupMiddleware(e)
	router.SetupRoutes(e, router.Handlers{
		Dispatch:      handlers.NewDispatchHandler(a.dispatcher),
		Events:        handlers.NewEventHandler(a.triggers),
		Notifications: handlers.NewNotificationHandler(a.records),
	}, []byte(cfg.TaskSigningSecret), a.firebase.AuthClient)

	if embedWorker {
		w, err := startWorker(a)
		if err != nil {
			return err
		}
		defer w.stop()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
