package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anonto42/flick/backend/internal/notify"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// BatchDispatcher processes a batch by id.
type BatchDispatcher interface {
	HandleReactionBatch(ctx context.Context, batchID string) (notify.Result, error)
	HandleTagBatch(ctx context.Context, batchID string) (notify.Result, error)
}

// DispatchHandler serves the delayed task callbacks. Every terminal outcome
// answers 200; only retryable failures answer 500 so the task queue retries.
type DispatchHandler struct {
	dispatcher BatchDispatcher
}

func NewDispatchHandler(dispatcher BatchDispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher}
}

// RegisterDispatchRoutes registers the callback routes
func (h *DispatchHandler) RegisterDispatchRoutes(g *echo.Group) {
	g.POST("/reaction-batches", h.DispatchReactionBatch)
	g.POST("/tag-batches", h.DispatchTagBatch)
}

type dispatchRequest struct {
	BatchID string `json:"batchId" validate:"required"`
}

func (h *DispatchHandler) DispatchReactionBatch(c echo.Context) error {
	return h.dispatch(c, h.dispatcher.HandleReactionBatch)
}

func (h *DispatchHandler) DispatchTagBatch(c echo.Context) error {
	return h.dispatch(c, h.dispatcher.HandleTagBatch)
}

func (h *DispatchHandler) dispatch(c echo.Context, handle func(ctx context.Context, batchID string) (notify.Result, error)) error {
	var req dispatchRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing batchId"})
	}
	req.BatchID = strings.TrimSpace(req.BatchID)
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing batchId"})
	}

	res, err := handle(c.Request().Context(), req.BatchID)
	if err != nil {
		var retryable *notify.RetryableError
		if !errors.As(err, &retryable) {
			logrus.WithError(err).WithField("batch_id", req.BatchID).Error("unexpected dispatch error")
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}
