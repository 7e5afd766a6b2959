package router

import (
	"github.com/anonto42/flick/backend/internal/handlers"
	"github.com/anonto42/flick/backend/internal/middleware"
	"github.com/anonto42/flick/backend/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handlers bundles everything the HTTP surface serves.
type Handlers struct {
	Dispatch      *handlers.DispatchHandler
	Events        *handlers.EventHandler
	Notifications *handlers.NotificationHandler
}

// Migrate creates or updates the PostgreSQL tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Notification{}); err != nil {
		return err
	}
	logrus.Info("PostgreSQL auto-migrations completed.")
	return nil
}

// SetupRoutes configures all application routes. Task callbacks and change
// events are signed with the task secret; the inbox API takes Firebase ID
// tokens.
func SetupRoutes(e *echo.Echo, h Handlers, taskSecret []byte, verifier middleware.TokenVerifier) {
	// Health check - always accessible
	e.GET("/health", handlers.HealthCheck)

	tasks := e.Group("/tasks", middleware.TaskAuthMiddleware(taskSecret))
	h.Dispatch.RegisterDispatchRoutes(tasks)
	logrus.Debug("Task callback routes configured.")

	events := e.Group("/events", middleware.TaskAuthMiddleware(taskSecret))
	h.Events.RegisterEventRoutes(events)
	logrus.Debug("Change event routes configured.")

	api := e.Group("/api/v1", middleware.FirebaseAuthMiddleware(verifier))
	h.Notifications.RegisterNotificationRoutes(api)
	logrus.Debug("Notification routes configured.")

	logrus.Info("All routes configured.")
}
