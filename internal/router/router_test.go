package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/anonto42/flick/backend/internal/handlers"
	"github.com/anonto42/flick/backend/internal/middleware"
	"github.com/anonto42/flick/backend/internal/models"
	"github.com/anonto42/flick/backend/internal/notify"
	"github.com/anonto42/flick/backend/validators"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("router-secret")

type stubDispatcher struct{}

func (stubDispatcher) HandleReactionBatch(context.Context, string) (notify.Result, error) {
	return notify.Result{Outcome: notify.OutcomeNotFound}, nil
}

func (stubDispatcher) HandleTagBatch(context.Context, string) (notify.Result, error) {
	return notify.Result{Outcome: notify.OutcomeNotFound}, nil
}

type stubTriggers struct{}

func (stubTriggers) OnFriendshipWritten(context.Context, *models.Friendship, *models.Friendship) (int, error) {
	return 0, nil
}
func (stubTriggers) OnPhotoUpdated(context.Context, string, *models.Photo, *models.Photo) error {
	return nil
}
func (stubTriggers) OnCommentCreated(context.Context, string, *models.Comment) (int, error) {
	return 0, nil
}
func (stubTriggers) OnDarkroomUpdated(context.Context, string, *models.Darkroom) (int, error) {
	return 0, nil
}
func (stubTriggers) OnUserUpdated(context.Context, string, *models.User, *models.User) (bool, error) {
	return false, nil
}

type rejectAll struct{}

func (rejectAll) VerifyIDToken(context.Context, string) (*auth.Token, error) {
	return nil, errors.New("invalid token")
}

func newServer() *echo.Echo {
	e := echo.New()
	e.Validator = validators.NewValidator()
	SetupRoutes(e, Handlers{
		Dispatch:      handlers.NewDispatchHandler(stubDispatcher{}),
		Events:        handlers.NewEventHandler(stubTriggers{}),
		Notifications: handlers.NewNotificationHandler(nil),
	}, secret, rejectAll{})
	return e
}

func serve(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	rec := serve(newServer(), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTaskRoutesRequireSignedToken(t *testing.T) {
	e := newServer()

	rec := serve(e, http.MethodPost, "/tasks/reaction-batches", "", `{"batchId":"p1_u2"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(e, http.MethodPost, "/events/photos", "garbage", `{"id":"p1","after":{}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := middleware.SignTaskToken(secret, "p1_u2", time.Minute)
	require.NoError(t, err)
	rec = serve(e, http.MethodPost, "/tasks/reaction-batches", token, `{"batchId":"p1_u2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
}

func TestInboxRequiresFirebaseToken(t *testing.T) {
	rec := serve(newServer(), http.MethodGet, "/api/v1/notifications", "some-id-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
