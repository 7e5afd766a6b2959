package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/notify"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// EventTriggers reacts to document mutations forwarded by the document store.
type EventTriggers interface {
	OnFriendshipWritten(ctx context.Context, before, after *models.Friendship) (int, error)
	OnPhotoUpdated(ctx context.Context, photoID string, before, after *models.Photo) error
	OnCommentCreated(ctx context.Context, commentID string, comment *models.Comment) (int, error)
	OnDarkroomUpdated(ctx context.Context, uid string, after *models.Darkroom) (int, error)
	OnUserUpdated(ctx context.Context, uid string, before, after *models.User) (bool, error)
}

// EventHandler receives change events. Events are never redelivered, so
// every processed event answers 200 and failures are only logged.
type EventHandler struct {
	triggers EventTriggers
}

func NewEventHandler(triggers EventTriggers) *EventHandler {
	return &EventHandler{triggers: triggers}
}

// RegisterEventRoutes registers the change event routes
func (h *EventHandler) RegisterEventRoutes(g *echo.Group) {
	g.POST("/photos", h.PhotoUpdated)
	g.POST("/friendships", h.FriendshipWritten)
	g.POST("/comments", h.CommentCreated)
	g.POST("/darkrooms", h.DarkroomUpdated)
	g.POST("/users", h.UserUpdated)
}

type photoEvent struct {
	ID     string        `json:"id" validate:"required"`
	Before *models.Photo `json:"before"`
	After  *models.Photo `json:"after" validate:"required"`
}

type friendshipEvent struct {
	ID     string             `json:"id"`
	Before *models.Friendship `json:"before" validate:"omitempty"`
	After  *models.Friendship `json:"after" validate:"required"`
}

type commentEvent struct {
	ID    string          `json:"id" validate:"required"`
	After *models.Comment `json:"after" validate:"required"`
}

type darkroomEvent struct {
	ID    string           `json:"id" validate:"required"`
	After *models.Darkroom `json:"after" validate:"required"`
}

type userEvent struct {
	ID     string       `json:"id" validate:"required"`
	Before *models.User `json:"before"`
	After  *models.User `json:"after" validate:"required"`
}

func (h *EventHandler) PhotoUpdated(c echo.Context) error {
	var req photoEvent
	if err := h.bind(c, &req); err != nil {
		return ignored(c, "photo", err)
	}
	err := h.triggers.OnPhotoUpdated(c.Request().Context(), req.ID, req.Before, req.After)
	return h.respond(c, "photo", req.ID, 0, err)
}

func (h *EventHandler) FriendshipWritten(c echo.Context) error {
	var req friendshipEvent
	if err := h.bind(c, &req); err != nil {
		return ignored(c, "friendship", err)
	}
	n, err := h.triggers.OnFriendshipWritten(c.Request().Context(), req.Before, req.After)
	return h.respond(c, "friendship", req.ID, n, err)
}

func (h *EventHandler) CommentCreated(c echo.Context) error {
	var req commentEvent
	if err := h.bind(c, &req); err != nil {
		return ignored(c, "comment", err)
	}
	n, err := h.triggers.OnCommentCreated(c.Request().Context(), req.ID, req.After)
	return h.respond(c, "comment", req.ID, n, err)
}

func (h *EventHandler) DarkroomUpdated(c echo.Context) error {
	var req darkroomEvent
	if err := h.bind(c, &req); err != nil {
		return ignored(c, "darkroom", err)
	}
	n, err := h.triggers.OnDarkroomUpdated(c.Request().Context(), req.ID, req.After)
	return h.respond(c, "darkroom", req.ID, n, err)
}

func (h *EventHandler) UserUpdated(c echo.Context) error {
	var req userEvent
	if err := h.bind(c, &req); err != nil {
		return ignored(c, "user", err)
	}
	_, err := h.triggers.OnUserUpdated(c.Request().Context(), req.ID, req.Before, req.After)
	return h.respond(c, "user", req.ID, 0, err)
}

func (h *EventHandler) bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

func (h *EventHandler) respond(c echo.Context, kind, id string, notified int, err error) error {
	if errors.Is(err, notify.ErrInvalidEvent) {
		return ignored(c, kind, err)
	}
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"event": kind, "id": id}).Error("event handling failed")
		return c.JSON(http.StatusOK, echo.Map{"status": "failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "notified": notified})
}

func ignored(c echo.Context, kind string, err error) error {
	logrus.WithError(err).WithField("event", kind).Warn("ignoring malformed event")
	return c.JSON(http.StatusOK, echo.Map{"status": "ignored"})
}
